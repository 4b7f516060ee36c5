package pbtcp

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"pbtcp/client"
	"pbtcp/config"
)

type Greeter interface {
	SayHello(name string) string
}

type greeter struct{}

func (greeter) SayHello(name string) string { return "Hello " + name }

type RemoteGreeter interface {
	SayHello(name string) (string, error)
}

type remoteGreeter struct{ inv client.Invoker }

func (g remoteGreeter) SayHello(name string) (string, error) {
	return client.Call[string](context.Background(), g.inv, "SayHello", name)
}

var greeterCapability = client.Implement(func(inv client.Invoker) RemoteGreeter { return remoteGreeter{inv} })

func TestHelloWorld(t *testing.T) {
	srv, err := ProvideService(greeter{}, 0, "127.0.0.1", Interface[Greeter]())
	require.NoError(t, err)
	require.NoError(t, srv.Run())
	defer srv.Close()
	require.Equal(t, greeter{}, srv.LocalService())

	c, err := CreateClient(srv.Endpoint(), greeterCapability)
	require.NoError(t, err)
	defer c.Close()

	g, err := client.As[RemoteGreeter](c)
	require.NoError(t, err)
	reply, err := g.SayHello("Joe")
	require.NoError(t, err)
	require.Equal(t, "Hello Joe", reply)

	_, err = client.As[io.Closer](c)
	require.True(t, errors.Is(err, client.ErrInterfaceMismatch))
}

func TestClientCreatedBeforeServer(t *testing.T) {
	c, err := CreateClient("tcp://127.0.0.1:1", greeterCapability)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestProvideServiceFromProperties(t *testing.T) {
	srv, err := ProvideServiceFromProperties(greeter{}, map[string]any{
		config.HostnameKey: "127.0.0.1",
		config.PortKey:     "0",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Run())
	defer srv.Close()
	require.Equal(t, []string{"SayHello"}, srv.Methods())

	_, err = ProvideServiceFromProperties(greeter{}, map[string]any{config.PortKey: -1}, nil)
	require.Error(t, err)
}

func TestCapabilityMismatch(t *testing.T) {
	_, err := ProvideService(greeter{}, 0, "", Interface[io.Reader]())
	require.Error(t, err)
}
