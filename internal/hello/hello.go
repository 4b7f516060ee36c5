// Package hello is the sample service of the pbtcp-hello command.
package hello

import (
	"context"
	"sync/atomic"

	"pbtcp/client"
)

// Greeter is the capability the service is exported with.
type Greeter interface {
	SayHello(name string) string
}

// Service implements Greeter and counts its greetings.
type Service struct {
	greeted atomic.Int64
}

func (s *Service) SayHello(name string) string {
	s.greeted.Add(1)
	return "Hello " + name
}

// Greeted returns the number of answered greetings.
func (s *Service) Greeted() int64 {
	return s.greeted.Load()
}

// RemoteGreeter is Greeter as seen by a client.
type RemoteGreeter interface {
	SayHello(ctx context.Context, name string) (string, error)
}

type greeterClient struct {
	inv client.Invoker
}

func (g greeterClient) SayHello(ctx context.Context, name string) (string, error) {
	return client.Call[string](ctx, g.inv, "SayHello", name)
}

// Capability declares RemoteGreeter on a client.
var Capability = client.Implement(func(inv client.Invoker) RemoteGreeter {
	return greeterClient{inv: inv}
})
