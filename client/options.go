package client

import (
	"time"

	"go.uber.org/zap"

	"pbtcp/marshal"
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultCallTimeout  = 30 * time.Second
	DefaultRetries      = 1
	DefaultMaxFrameSize = 64 << 20
)

type options struct {
	logger       *zap.Logger
	marshaler    *marshal.Registry
	dialTimeout  time.Duration
	callTimeout  time.Duration
	retries      int
	maxFrameSize int
}

func defaultOptions() options {
	return options{
		logger:       zap.NewNop(),
		dialTimeout:  DefaultDialTimeout,
		callTimeout:  DefaultCallTimeout,
		retries:      DefaultRetries,
		maxFrameSize: DefaultMaxFrameSize,
	}
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger of the client.
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

// WithDialTimeout bounds opening a connection.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.dialTimeout = d }
}

// WithCallTimeout bounds the I/O of one attempt. Zero leaves only the
// context deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithRetries sets how many times a call is repeated on a fresh connection
// after a connection failure.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithMaxFrameSize rejects replies longer than n bytes.
func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}
