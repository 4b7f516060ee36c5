package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pbtcp/internal/hello"
	"pbtcp/server"
)

func startGreeter(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(&hello.Service{}, 0, server.WithHost("127.0.0.1"))
	require.NoError(t, err)
	require.NoError(t, srv.Run())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommandeer()
	var out bytes.Buffer
	root.cmd.SetOut(&out)
	root.cmd.SetArgs(args)
	err := root.cmd.Execute()
	return out.String(), err
}

func TestCallByAddress(t *testing.T) {
	srv := startGreeter(t)

	out, err := execute(t, "call", "--address", srv.Endpoint(), "Joe")
	require.NoError(t, err)
	require.Equal(t, "Hello Joe\n", out)
}

func TestCallFromConfigFile(t *testing.T) {
	srv := startGreeter(t)

	path := filepath.Join(t.TempDir(), "pbtcp.yaml")
	port := srv.Addr().String()[len("127.0.0.1:"):]
	content := fmt.Sprintf("pbtcp:\n  hostname: 127.0.0.1\n  port: %s\n", port)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	out, err := execute(t, "--config", path, "call")
	require.NoError(t, err)
	require.Equal(t, "Hello World\n", out)
}

func TestUnknownBalancer(t *testing.T) {
	cc := &callCommandeer{balancer: "fastest"}
	_, err := cc.newBalancer()
	require.Error(t, err)

	cc.balancer = "hash:user-1"
	b, err := cc.newBalancer()
	require.NoError(t, err)
	require.Equal(t, "ConsistentHash", b.Name())
}
