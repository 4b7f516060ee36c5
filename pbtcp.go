// Package pbtcp exports Go values as remote services and calls them over
// TCP with protobuf-encoded messages.
//
// A service is started with ProvideService and reached with CreateClient:
//
//	srv, err := pbtcp.ProvideService(&greeter{}, 5556, "localhost", pbtcp.Interface[Greeter]())
//	...
//	err = srv.Run()
//	...
//	c, err := pbtcp.CreateClient("tcp://localhost:5556", greeterCapability)
//	g, err := client.As[Greeter](c)
//	reply, err := g.SayHello("Joe")
//
// Every message on the wire is a varint32 length followed by a protobuf
// MethodInvocation or Result, see packages protocol and message.
package pbtcp

import (
	"reflect"

	"pbtcp/client"
	"pbtcp/config"
	"pbtcp/server"
)

// Interface returns the capability type of interface T.
func Interface[T any]() reflect.Type {
	return server.Interface[T]()
}

// ProvideService prepares service to be served on host:port. A blank host
// means localhost. With no capabilities every exported method is callable.
// The returned server is started with Run and stopped with Close.
func ProvideService(service any, port int, host string, capabilities ...reflect.Type) (*server.Server, error) {
	if host == "" {
		host = server.DefaultHost
	}
	return server.New(service, port, server.WithHost(host), server.WithCapabilities(capabilities...))
}

// ProvideServiceFromProperties is ProvideService with host and port read
// from service properties, see package config. Further options are applied
// after those.
func ProvideServiceFromProperties(service any, props map[string]any, capabilities []reflect.Type, opts ...server.Option) (*server.Server, error) {
	p, err := config.FromProperties(props)
	if err != nil {
		return nil, err
	}
	opts = append([]server.Option{server.WithHost(p.Hostname), server.WithCapabilities(capabilities...)}, opts...)
	return server.New(service, p.Port, opts...)
}

// CreateClient returns a client of the service at address, tcp://host:port,
// implementing the given capabilities.
func CreateClient(address string, capabilities ...client.Capability) (*client.Client, error) {
	return client.New(address, capabilities)
}
