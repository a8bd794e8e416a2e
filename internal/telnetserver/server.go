// Package telnetserver accepts TCP connections and hands each one to a
// session handler, optionally behind a telnet option layer.
package telnetserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stlalpha/xfer/internal/metrics"
)

// DefaultNegotiationWait bounds how long a telnet handshake is drained.
const DefaultNegotiationWait = 500 * time.Millisecond

// Conn is what a handler receives for each accepted connection.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	SetReadDeadline(t time.Time) error
}

// Handler runs one session. The connection is closed after it returns.
type Handler func(ctx context.Context, conn Conn)

// Config holds server configuration.
type Config struct {
	Port            int
	Host            string
	Telnet          bool          // Negotiate options and filter IAC sequences
	NegotiationWait time.Duration // Zero means DefaultNegotiationWait
	Handler         Handler
}

// Server listens for TCP connections and runs a handler per connection.
type Server struct {
	listener net.Listener
	config   Config
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewServer creates a new server instance. Port 0 picks a free port.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("session handler is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.NegotiationWait == 0 {
		cfg.NegotiationWait = DefaultNegotiationWait
	}

	return &Server{config: cfg}, nil
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds and then serves until Close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until Close is called. ctx is passed to every
// handler.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return fmt.Errorf("server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.listener == nil
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return nil // Clean shutdown
			}
			logrus.WithError(err).Error("Accept failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}

		metrics.RecordConnection()
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection runs the handler for one accepted connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	log := logrus.WithFields(logFields(conn))
	log.Debug("Connection accepted")

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic handling connection: %v", r)
		}
		conn.Close()
		s.wg.Done()
	}()

	var c Conn = conn
	if s.config.Telnet {
		tc := NewTelnetConn(conn)
		if err := tc.Negotiate(s.config.NegotiationWait); err != nil {
			log.WithError(err).Error("Telnet negotiation failed")
			return
		}
		c = tc
	}

	s.config.Handler(ctx, c)
}

// Close stops accepting connections. Running sessions are not interrupted.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}

// Wait blocks until every running handler has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}
