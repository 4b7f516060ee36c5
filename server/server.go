// Package server exports a local Go value as a pbtcp service.
//
// Request processing pipeline:
//
//	Accept conn → one goroutine per connection (session)
//	  → read varint length → read body → message.UnmarshalInvocation
//	    → middleware chain → MethodTable.Dispatch (unpack, call, pack)
//	  → write one framed Result → wait for the next request
//
// Requests on a connection are served one at a time; connections are
// independent of each other.
package server

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pbtcp/config"
	"pbtcp/marshal"
	"pbtcp/middleware"
	"pbtcp/registry"
)

var (
	ErrAlreadyRunning = errors.New("server: already running")
	ErrServerClosed   = errors.New("server: closed")
)

// Server serves one local service value.
type Server struct {
	service any
	port    int
	opts    options
	table   *MethodTable
	handler middleware.HandlerFunc
	logger  *zap.Logger

	running  atomic.Bool // set by the first Run
	closed   atomic.Bool
	ctx      context.Context // cancelled by Close
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	endpoint string // published endpoint, "" if not registered
}

// New builds a server for service on port. Port 0 picks a free port once
// Run binds, see Addr.
func New(service any, port int, opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.marshaler == nil {
		o.marshaler = marshal.NewRegistry()
	}

	table, err := NewMethodTable(service, o.capabilities, o.funcs, o.marshaler, o.logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		service: service,
		port:    port,
		opts:    o,
		table:   table,
		logger:  o.logger,
		conns:   make(map[net.Conn]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	// Build the middleware chain once, not per request.
	s.handler = middleware.Chain(o.middlewares...)(table.Dispatch)
	return s, nil
}

// LocalService returns the value being served.
func (s *Server) LocalService() any {
	return s.service
}

// Methods lists the exported method names.
func (s *Server) Methods() []string {
	return s.table.Names()
}

// Run binds the listening socket and starts serving in the background. It
// fails with ErrAlreadyRunning on a second call and ErrServerClosed after
// Close.
func (s *Server) Run() error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	addr := net.JoinHostPort(s.opts.host, strconv.Itoa(s.port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return errors.Wrapf(err, "server: listen on %s", addr)
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.wg.Add(1)
	s.mu.Unlock()

	go s.acceptLoop(l)

	if err := s.publish(); err != nil {
		s.Close()
		return err
	}
	s.logger.Info("server started", zap.Stringer("addr", l.Addr()), zap.Strings("methods", s.Methods()))
	return nil
}

// publish registers the endpoint when a registry is configured.
func (s *Server) publish() error {
	if s.opts.registry == nil {
		return nil
	}
	addr := s.Addr().(*net.TCPAddr)
	ep := registry.Endpoint{
		ServiceName: s.opts.serviceName,
		Addr:        s.Endpoint(),
		Weight:      1,
		Properties: map[string]string{
			config.HostnameKey: s.advertisedHost(),
			config.PortKey:     strconv.Itoa(addr.Port),
		},
	}
	for _, c := range s.opts.capabilities {
		ep.Capabilities = append(ep.Capabilities, CapabilityName(c))
	}
	if err := s.opts.registry.Register(s.ctx, ep, s.opts.registryTTL); err != nil {
		return errors.Wrapf(err, "server: register %s", ep.Addr)
	}

	s.mu.Lock()
	s.endpoint = ep.Addr
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Endpoint returns the endpoint identifier, tcp://host:port, or "" before Run.
func (s *Server) Endpoint() string {
	addr, ok := s.Addr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	return registry.EndpointAddr(s.advertisedHost(), addr.Port)
}

func (s *Server) advertisedHost() string {
	if s.opts.host == "" {
		return DefaultHost
	}
	return s.opts.host
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			// Close makes Accept fail; anything else is a real error.
			if !s.closed.Load() {
				s.logger.Error("accept failed", zap.Error(err))
			}
			return
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			newSession(s, conn).serve()
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Close deregisters the endpoint, stops accepting and closes every open
// connection. It is safe to call more than once and without Run.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	endpoint := s.endpoint
	l := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	// Deregister first so that clients stop picking this server.
	if endpoint != "" {
		if err := s.opts.registry.Deregister(context.Background(), s.opts.serviceName, endpoint); err != nil {
			s.logger.Warn("deregister failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}

	s.cancel()
	if l != nil {
		l.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()

	if l != nil {
		s.logger.Info("server closed", zap.Stringer("addr", l.Addr()))
	}
	return nil
}
