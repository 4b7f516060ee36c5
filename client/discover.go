package client

import (
	"context"

	"github.com/pkg/errors"

	"pbtcp/loadbalance"
	"pbtcp/registry"
)

// Discover looks serviceName up in reg, lets balancer pick one of its
// endpoints and returns a client of that endpoint.
func Discover(ctx context.Context, reg registry.Registry, balancer loadbalance.Balancer, serviceName string, capabilities []Capability, opts ...Option) (*Client, error) {
	endpoints, err := reg.Discover(ctx, serviceName)
	if err != nil {
		return nil, errors.Wrapf(err, "client: discover %s", serviceName)
	}
	ep, err := balancer.Pick(endpoints)
	if err != nil {
		return nil, errors.Wrapf(err, "client: pick endpoint of %s with %s", serviceName, balancer.Name())
	}
	return New(ep.Addr, capabilities, opts...)
}
