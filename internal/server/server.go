package server

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Server owns a listener and runs one connection pipeline per accepted
// stream. The engine itself lives in ServeConn; this wrapper exists so
// binaries do not repeat the accept/close boilerplate.
type Server struct {
	Port     int
	listener net.Listener
	closed   atomic.Bool
	handler  Handler
	cfg      Config
	log      zerolog.Logger
}

type Option func(*Server)

// WithConfig replaces the per-connection configuration.
func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

// WithLogger routes server and connection logs to l.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Serve listens on the port and serves until Close.
func Serve(port int, handler Handler, opts ...Option) (*Server, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "listen on port %d", port)
	}
	s := &Server{
		Port:     port,
		listener: l,
		handler:  handler,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg.Logger = s.log
	go s.listen()
	return s, nil
}

// Addr returns the bound listener address, useful when Port was 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections. Connections already being served
// keep running and are not waited for. Idempotent.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) listen() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// transient accept error; keep going
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	log := s.log.With().Str("remote", remote).Logger()
	log.Debug().Msg("connection opened")

	cfg := s.cfg
	cfg.Logger = log
	if err := ServeConn(conn, s.handler, cfg); err != nil {
		log.Warn().Err(err).Msg("connection failed")
		return
	}
	log.Debug().Msg("connection closed")
}
