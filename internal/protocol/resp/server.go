package resp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/pkg/metrics"
	"github.com/planethub/planethub/pkg/svcerr"
)

// Handler processes one parsed command and produces a reply. A new Handler
// is created per connection, so implementations may carry per-connection
// state (the file service's USER context relies on this).
type Handler interface {
	Handle(ctx context.Context, cmd Command) (Value, error)
}

// ServerConfig holds configuration for a RESP service endpoint.
type ServerConfig struct {
	// Host is the listen address (empty for all interfaces).
	Host string

	// Port is the TCP port to listen on.
	Port int

	// NewHandler creates the command handler for one accepted connection.
	NewHandler func() Handler

	// Name identifies the service in logs ("file", "user").
	Name string
}

// Server accepts connections and processes commands until each client
// disconnects. Handler errors are rendered as "-NNN message" replies;
// errors without a service code become "-500 Internal error" and the
// underlying message is only logged.
type Server struct {
	config       ServerConfig
	listener     net.Listener
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a new RESP server with the given configuration.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		config:   cfg,
		shutdown: make(chan struct{}),
	}
}

// Serve starts accepting connections. It blocks until the context is
// cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = listener

	logger.Info("Service listening", "service", s.config.Name, "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// Stop closes the listener and stops accepting new connections. In-flight
// connections are allowed to finish their current command.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// Addr returns the bound listen address, for tests using port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	client := conn.RemoteAddr().String()
	logger.Debug("Client connected", "service", s.config.Name, "client", client)

	handler := s.config.NewHandler()
	reader := NewReader(conn)

	for {
		cmd, err := reader.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("Client read error", "service", s.config.Name, "client", client, "error", err)
			}
			return
		}

		reply := s.dispatch(ctx, handler, cmd, client)
		if _, err := conn.Write(reply.Encode()); err != nil {
			logger.Debug("Client write error", "service", s.config.Name, "client", client, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, handler Handler, cmd Command, client string) Value {
	start := time.Now()
	reply, err := handler.Handle(ctx, cmd)
	metrics.RecordCommand(s.config.Name, cmd.Verb, err, time.Since(start))
	if err == nil {
		return reply
	}
	var se *svcerr.Error
	if !errors.As(err, &se) {
		// Uncoded failure: log the detail, answer opaquely.
		logger.Error("Command failed", "service", s.config.Name, "client", client, "verb", cmd.Verb, "error", err)
	}
	return Err(svcerr.Wire(err))
}
