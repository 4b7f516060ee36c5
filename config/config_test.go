package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromPropertiesDefaults(t *testing.T) {
	p, err := FromProperties(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultHostname, p.Hostname)
	require.Equal(t, DefaultPort, p.Port)
	require.Equal(t, "tcp://localhost:5556", p.Endpoint())
}

func TestFromProperties(t *testing.T) {
	p, err := FromProperties(map[string]any{
		HostnameKey: "example.org",
		PortKey:     "8080",
		"other.key": true,
	})
	require.NoError(t, err)
	require.Equal(t, "example.org", p.Hostname)
	require.Equal(t, 8080, p.Port)

	again, err := FromProperties(p.Properties())
	require.NoError(t, err)
	require.Equal(t, p, again)
}

func TestFromPropertiesInvalid(t *testing.T) {
	_, err := FromProperties(map[string]any{PortKey: "not a port"})
	require.Error(t, err)

	_, err = FromProperties(map[string]any{PortKey: 70000})
	require.Error(t, err)

	_, err = FromProperties(map[string]any{HostnameKey: ""})
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	p, err := Load([]byte("pbtcp:\n  hostname: 10.0.0.1\n  port: 9000\n"))
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", p.Hostname)
	require.Equal(t, 9000, p.Port)

	p, err = Load([]byte("pbtcp.port: 9001\n"))
	require.NoError(t, err)
	require.Equal(t, DefaultHostname, p.Hostname)
	require.Equal(t, 9001, p.Port)

	_, err = Load([]byte("pbtcp: [unbalanced"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbtcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pbtcp:\n  port: 7000\n"), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 7000, p.Port)
	require.Equal(t, "localhost:7000", p.String())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
