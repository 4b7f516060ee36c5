package server

import (
	"reflect"
	"time"

	"go.uber.org/zap"

	"pbtcp/marshal"
	"pbtcp/middleware"
	"pbtcp/registry"
)

const (
	DefaultHost         = "localhost"
	DefaultIdleTimeout  = 60 * time.Second
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultMaxFrameSize = 64 << 20
	DefaultRegistryTTL  = 10 // seconds
)

type options struct {
	host         string
	capabilities []reflect.Type
	funcs        []NamedFunc
	middlewares  []middleware.Middleware
	logger       *zap.Logger
	marshaler    *marshal.Registry

	idleTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrameSize int

	registry    registry.Registry
	serviceName string
	registryTTL int64
}

func defaultOptions() options {
	return options{
		host:         DefaultHost,
		logger:       zap.NewNop(),
		idleTimeout:  DefaultIdleTimeout,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// Option configures a Server.
type Option func(*options)

// WithHost sets the host to bind. An empty host binds all interfaces.
func WithHost(host string) Option {
	return func(o *options) { o.host = host }
}

// WithCapabilities restricts the exported methods to those of the given
// interface types, see Interface.
func WithCapabilities(capabilities ...reflect.Type) Option {
	return func(o *options) { o.capabilities = append(o.capabilities, capabilities...) }
}

// WithFunc exports fn under name, next to any method of that name. This is
// how overloads are declared.
func WithFunc(name string, fn any) Option {
	return func(o *options) { o.funcs = append(o.funcs, NamedFunc{Name: name, Fn: fn}) }
}

// WithMiddleware wraps the dispatch handler. Middlewares run in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithLogger sets the logger of the server and its sessions.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMarshaler replaces the value converters.
func WithMarshaler(m *marshal.Registry) Option {
	return func(o *options) { o.marshaler = m }
}

// WithIdleTimeout bounds the wait for the first byte of a request. Zero
// waits forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithReadTimeout bounds every read once a request has started.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithWriteTimeout bounds writing a reply.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithMaxFrameSize rejects requests longer than n bytes.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

// WithRegistry publishes the server as serviceName in reg while it runs.
// A ttl <= 0 uses DefaultRegistryTTL.
func WithRegistry(reg registry.Registry, serviceName string, ttl int64) Option {
	return func(o *options) {
		o.registry = reg
		o.serviceName = serviceName
		if ttl <= 0 {
			ttl = DefaultRegistryTTL
		}
		o.registryTTL = ttl
	}
}
