package server

import (
	"bufio"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pbtcp/message"
	"pbtcp/protocol"
)

type sessionState int

const (
	awaitLength sessionState = iota
	awaitBody
	dispatch
)

// session serves the requests of one connection, one at a time.
type session struct {
	srv     *Server
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration // deadline of the next read from conn
	logger  *zap.Logger
}

// deadlineReader arms the read deadline before every read, so that each
// read in a state gets the state's full timeout.
type deadlineReader struct {
	s *session
}

func (d deadlineReader) Read(p []byte) (int, error) {
	// A zero timeout clears the deadline left by the previous state.
	var deadline time.Time
	if d.s.timeout > 0 {
		deadline = time.Now().Add(d.s.timeout)
	}
	if err := d.s.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	return d.s.conn.Read(p)
}

func newSession(srv *Server, conn net.Conn) *session {
	s := &session{
		srv:    srv,
		conn:   conn,
		logger: srv.logger.With(zap.Stringer("remote", conn.RemoteAddr())),
	}
	s.r = bufio.NewReader(deadlineReader{s})
	return s
}

func (s *session) serve() {
	s.logger.Debug("connection opened")
	defer s.logger.Debug("connection closed")

	var (
		state  = awaitLength
		length protocol.VarintDecoder
		size   int
		body   []byte
	)
	for {
		switch state {
		case awaitLength:
			// Waiting for a new request may take long, a started one may not.
			s.timeout = s.srv.opts.idleTimeout
			if length.Started() {
				s.timeout = s.srv.opts.readTimeout
			}
			b, err := s.r.ReadByte()
			if err != nil {
				s.readFailed(err, length.Started())
				return
			}
			n, done, err := length.Feed(b)
			if err != nil {
				s.fail(message.FramingErrorType, err)
				return
			}
			if !done {
				continue
			}
			if err := protocol.CheckLength(n, s.srv.opts.maxFrameSize); err != nil {
				s.fail(message.FramingErrorType, err)
				return
			}
			size = n
			state = awaitBody

		case awaitBody:
			s.timeout = s.srv.opts.readTimeout
			body = make([]byte, size)
			if _, err := io.ReadFull(s.r, body); err != nil {
				s.readFailed(err, true)
				return
			}
			state = dispatch

		case dispatch:
			if err := s.reply(s.dispatch(body)); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				return
			}
			body = nil
			state = awaitLength
		}
	}
}

func (s *session) dispatch(body []byte) (result *message.Result) {
	inv, err := message.UnmarshalInvocation(body)
	if err != nil {
		return message.Failedf(message.ParseErrorType, "could not parse message: %v", err)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", zap.String("method", inv.Method), zap.Any("panic", r))
			result = panicResult(r)
		}
	}()

	result = s.srv.handler(s.srv.ctx, inv)
	if result == nil {
		result = message.Failedf(message.PanicType, "no result for %s", inv.Method)
	}
	s.logger.Debug("call", zap.String("method", inv.Method), zap.Bool("ok", result.OK()))
	return result
}

func (s *session) reply(result *message.Result) error {
	data, err := result.Marshal()
	if err != nil {
		data, err = message.Failedf(message.PanicType, "invalid result: %v", err).Marshal()
		if err != nil {
			return err
		}
	}
	if s.srv.opts.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.srv.opts.writeTimeout)); err != nil {
			return err
		}
	}
	return protocol.WriteFrame(s.conn, data)
}

// fail sends a last failure reply before the session ends.
func (s *session) fail(kind string, err error) {
	s.logger.Info("ending session", zap.String("kind", kind), zap.Error(err))
	if werr := s.reply(message.Failed(kind, err.Error())); werr != nil {
		s.logger.Debug("write failed", zap.Error(werr))
	}
}

func (s *session) readFailed(err error, inFrame bool) {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		if inFrame {
			s.fail(message.TimeoutType, errors.Errorf("incomplete request, no data within %s", s.timeout))
			return
		}
		s.logger.Debug("idle timeout")
	case err == io.EOF, err == io.ErrUnexpectedEOF, errors.Is(err, net.ErrClosed):
		s.logger.Debug("peer closed", zap.Bool("inFrame", inFrame))
	default:
		s.logger.Warn("read failed", zap.Error(err))
	}
}
