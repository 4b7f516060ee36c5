// Package client calls pbtcp services.
//
// A Client owns at most one connection. It is opened on the first call,
// reused by the following ones and dropped on any I/O failure; the next
// call dials again. A Client serves one call at a time, use a Pool to share
// connections between goroutines.
package client

import (
	"bufio"
	"context"
	"io"
	"net"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/anypb"

	"pbtcp/marshal"
	"pbtcp/message"
	"pbtcp/protocol"
	"pbtcp/registry"
)

// Client is a proxy of a remote service.
type Client struct {
	address   string // tcp://host:port
	hostPort  string
	opts      options
	marshaler *marshal.Registry
	logger    *zap.Logger

	capabilities []reflect.Type
	adapters     map[reflect.Type]any
	closeable    bool

	conn net.Conn
	r    *bufio.Reader
}

// New returns a client of the service at address, implementing the given
// capabilities. No connection is made until the first call.
func New(address string, capabilities []Capability, opts ...Option) (*Client, error) {
	hostPort, err := registry.HostPort(address)
	if err != nil {
		return nil, errors.Wrap(err, "client: bad address")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.marshaler == nil {
		o.marshaler = marshal.NewRegistry()
	}

	c := &Client{
		address:   address,
		hostPort:  hostPort,
		opts:      o,
		marshaler: o.marshaler,
		logger:    o.logger.With(zap.String("address", address)),
		adapters:  make(map[reflect.Type]any, len(capabilities)),
	}
	for _, capability := range capabilities {
		t := capability.typ
		if t == nil {
			return nil, errors.New("client: zero Capability, use Implement")
		}
		if _, dup := c.adapters[t]; dup {
			continue
		}
		c.capabilities = append(c.capabilities, t)
		c.adapters[t] = capability.build(c)
		if t == closerType {
			c.closeable = true
		}
	}
	return c, nil
}

// Address returns the service endpoint.
func (c *Client) Address() string {
	return c.address
}

// Capabilities lists the declared interface types.
func (c *Client) Capabilities() []reflect.Type {
	return append([]reflect.Type(nil), c.capabilities...)
}

// Invoke calls method with args and stores the result in reply.
//
// Arguments that cannot be packed fail before any I/O. A failure reported by
// the server is returned as *RemoteError; a connection that fails, or a
// reply that cannot be read, is retried on a fresh connection and finally
// returned as *CommunicationError.
func (c *Client) Invoke(ctx context.Context, method string, args []any, reply any) error {
	inv := &message.Invocation{Method: method, Args: make([]*anypb.Any, len(args))}
	for i, arg := range args {
		boxed, err := c.marshaler.Pack(arg)
		if err != nil {
			return errors.Wrapf(err, "client: argument %d of %s", i, method)
		}
		inv.Args[i] = boxed
	}

	var target reflect.Value
	if reply != nil {
		target = reflect.ValueOf(reply)
		if target.Kind() != reflect.Ptr || target.IsNil() {
			return errors.Errorf("client: reply of %s must be a non-nil pointer, got %T", method, reply)
		}
		target = target.Elem()
	}

	body, err := inv.Marshal()
	if err != nil {
		return err
	}
	frame := protocol.AppendFrame(nil, body)

	var result *message.Result
	for attempt := 0; ; attempt++ {
		result, err = c.roundTrip(ctx, frame)
		if err == nil {
			break
		}
		c.reset()
		if attempt >= c.opts.retries || ctx.Err() != nil {
			return &CommunicationError{Address: c.address, Method: method, Err: err}
		}
		c.logger.Debug("retrying call", zap.String("method", method), zap.Error(err))
	}

	if f := result.Failure; f != nil {
		return &RemoteError{Type: f.Type, Message: f.Message}
	}
	if reply == nil {
		return nil
	}
	v, ok := c.marshaler.Unpack(result.Success, target.Type())
	if !ok {
		return &CommunicationError{
			Address: c.address,
			Method:  method,
			Err:     errors.Errorf("result %q is not a %v", result.Success.GetTypeUrl(), target.Type()),
		}
	}
	target.Set(v)
	return nil
}

// roundTrip performs one attempt on the current connection, dialing first
// when there is none.
func (c *Client) roundTrip(ctx context.Context, frame []byte) (*message.Result, error) {
	if c.conn == nil {
		d := net.Dialer{Timeout: c.opts.dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", c.hostPort)
		if err != nil {
			return nil, errors.Wrap(err, "dial")
		}
		c.conn = conn
		c.r = bufio.NewReader(conn)
		c.logger.Debug("connected", zap.Stringer("local", conn.LocalAddr()))
	}

	var deadline time.Time
	if c.opts.callTimeout > 0 {
		deadline = time.Now().Add(c.opts.callTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}
	// Unblock the I/O below when ctx is cancelled.
	conn := c.conn
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := c.conn.Write(frame); err != nil {
		return nil, errors.Wrap(err, "write")
	}
	body, err := protocol.ReadFrame(c.r, c.opts.maxFrameSize)
	if err != nil {
		if err == io.EOF {
			return nil, errors.Wrap(err, "server closed the connection")
		}
		return nil, errors.Wrap(err, "read")
	}
	result, err := message.UnmarshalResult(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode reply")
	}
	return result, nil
}

// reset drops the current connection.
func (c *Client) reset() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.r = nil
	}
}

// Close releases the connection. When the client was built with Closeable
// the remote service's Close is called first; failing to reach the server
// is ignored then, but an error returned by the remote Close is reported.
// The client stays usable and dials again on the next call.
func (c *Client) Close() error {
	var err error
	if c.closeable {
		ctx := context.Background()
		err = c.Invoke(ctx, "Close", nil, nil)
		var comm *CommunicationError
		if errors.As(err, &comm) {
			c.logger.Debug("remote close not delivered", zap.Error(err))
			err = nil
		}
	}
	c.reset()
	return err
}
