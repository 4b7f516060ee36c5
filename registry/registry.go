// Package registry publishes and looks up pbtcp endpoints in a service
// directory.
package registry

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Scheme is the only endpoint scheme pbtcp speaks.
const Scheme = "tcp"

// ErrNoEndpoints is returned when a service has no live endpoint.
var ErrNoEndpoints = errors.New("registry: no endpoints available")

// Endpoint describes one exported service instance.
type Endpoint struct {
	ServiceName  string            `json:"serviceName"`
	Addr         string            `json:"addr"` // tcp://host:port
	Weight       int               `json:"weight,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// Registry is a directory of endpoints keyed by service name.
type Registry interface {
	// Register publishes ep for ttl seconds, renewing it until Deregister.
	Register(ctx context.Context, ep Endpoint, ttl int64) error
	Deregister(ctx context.Context, serviceName, addr string) error
	Discover(ctx context.Context, serviceName string) ([]Endpoint, error)
	// Watch emits the full endpoint list every time it changes, until ctx
	// is done.
	Watch(ctx context.Context, serviceName string) <-chan []Endpoint
}

// EndpointAddr renders the endpoint identifier of host and port.
func EndpointAddr(host string, port int) string {
	return fmt.Sprintf("%s://%s", Scheme, net.JoinHostPort(host, fmt.Sprint(port)))
}

// HostPort extracts "host:port" from an endpoint identifier.
func HostPort(addr string) (string, error) {
	rest, ok := strings.CutPrefix(addr, Scheme+"://")
	if !ok {
		return "", errors.Errorf("registry: endpoint %q is not a %s:// address", addr, Scheme)
	}
	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		return "", errors.Wrapf(err, "registry: endpoint %q", addr)
	}
	if host == "" || port == "" {
		return "", errors.Errorf("registry: endpoint %q needs both host and port", addr)
	}
	return rest, nil
}
