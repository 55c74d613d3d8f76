package router

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/pkg/metrics"
	"github.com/planethub/planethub/pkg/svcerr"
)

// Server speaks the multiplexer's plain-text line protocol: each TCP
// connection carries exactly one request; multi-line responses are
// terminated by closing the connection.
type Server struct {
	router       *Router
	host         string
	port         int
	listener     net.Listener
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewServer creates a line-protocol server fronting the router.
func NewServer(r *Router, host string, port int) *Server {
	return &Server{
		router:   r,
		host:     host,
		port:     port,
		shutdown: make(chan struct{}),
	}
}

// Serve accepts connections until the context is cancelled or Stop is
// called, then stops every live session.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = listener

	logger.Info("Service listening", "service", "router", "address", listener.Addr().String())

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
				s.router.Shutdown()
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConn(c)
		}(conn)
	}
}

// Stop closes the listener and stops accepting new connections.
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

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	br := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	defer func() { _ = w.Flush() }()

	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		writeError(w, svcerr.BadRequest("Empty request"))
		return
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]
	logger.Debug("Router request", "client", conn.RemoteAddr().String(), "verb", verb)
	start := time.Now()
	var cmdErr error
	defer func() { metrics.RecordCommand("router", verb, cmdErr, time.Since(start)) }()

	switch verb {
	case "LIST":
		s.handleList(w)
	case "INFO":
		cmdErr = s.handleInfo(w, args)
	case "S":
		cmdErr = s.handleTalk(w, br, args)
	case "CLOSE":
		cmdErr = s.handleGroup(w, args, func(sel string) ([]string, error) {
			return s.router.CloseSessions(sel)
		})
	case "RESTART":
		cmdErr = s.handleGroup(w, args, func(sel string) ([]string, error) {
			return s.router.RestartSessions(sel)
		})
	case "SAVE":
		cmdErr = s.handleGroup(w, args, func(sel string) ([]string, error) {
			return s.router.SaveSessions(sel, true)
		})
	case "SAVENN":
		cmdErr = s.handleGroup(w, args, func(sel string) ([]string, error) {
			return s.router.SaveSessions(sel, false)
		})
	case "NEW":
		cmdErr = s.handleNew(w, args)
	case "CONFIG":
		s.handleConfig(w)
	default:
		cmdErr = svcerr.BadRequest("Unknown command")
	}
	if cmdErr != nil {
		writeError(w, cmdErr)
	}
}

func writeError(w *bufio.Writer, err error) {
	var se *svcerr.Error
	if !errors.As(err, &se) {
		logger.Error("Router request failed", "error", err)
	}
	fmt.Fprintf(w, "%s\n", svcerr.Wire(err))
}

func (s *Server) handleList(w *bufio.Writer) {
	snaps := s.router.List()
	fmt.Fprintf(w, "200 OK, %d sessions\n", len(snaps))
	now := s.router.now()
	for _, snap := range snaps {
		fmt.Fprintf(w, "%s %d %d %s %s %s\n",
			snap.ID,
			snap.Pid,
			int(now.Sub(snap.LastUsed).Seconds()),
			flag(snap.Used),
			flag(snap.Modified),
			strings.Join(snap.Args, " "))
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Server) handleInfo(w *bufio.Writer, args []string) error {
	if len(args) != 1 {
		return svcerr.BadRequest("Invalid number of arguments")
	}
	session, err := s.router.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "200 OK\n")
	for _, a := range session.Args {
		fmt.Fprintf(w, "%s\n", a)
	}
	return nil
}

// handleTalk forwards a command to one session's child. The command may be
// inline ("S id GET foo") or follow on subsequent lines; POST bodies are
// read through their "." terminator, which is stripped before forwarding
// since the session re-appends it.
func (s *Server) handleTalk(w *bufio.Writer, br *bufio.Reader, args []string) error {
	if len(args) == 0 {
		return svcerr.BadRequest("Invalid number of arguments")
	}
	id := args[0]

	var cmd string
	if len(args) > 1 {
		cmd = strings.Join(args[1:], " ")
	} else {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			return svcerr.BadRequest("Missing command")
		}
		cmd = strings.TrimRight(line, "\r\n")
	}

	if strings.HasPrefix(cmd, "POST") {
		for {
			line, err := br.ReadString('\n')
			if err != nil && line == "" {
				return svcerr.BadRequest("Unterminated body")
			}
			if strings.TrimRight(line, "\r\n") == "." {
				break
			}
			cmd += "\n" + strings.TrimRight(line, "\r\n")
		}
	}

	reply, err := s.router.Talk(id, cmd)
	if err != nil {
		return err
	}
	_, _ = w.WriteString(reply)
	return nil
}

func (s *Server) handleGroup(w *bufio.Writer, args []string, op func(sel string) ([]string, error)) error {
	if len(args) != 1 {
		return svcerr.BadRequest("Invalid number of arguments")
	}
	ids, err := op(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "200 OK\n")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\n", id)
	}
	return nil
}

func (s *Server) handleNew(w *bufio.Writer, args []string) error {
	session, err := s.router.NewSession(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "201 %s Created\n", session.ID)
	return nil
}

func (s *Server) handleConfig(w *bufio.Writer) {
	cfg := s.router.Config()
	fmt.Fprintf(w, "200 OK\n")
	fmt.Fprintf(w, "server=%s\n", cfg.Server)
	fmt.Fprintf(w, "timeout=%s\n", cfg.Timeout.Std())
	fmt.Fprintf(w, "virgintimeout=%s\n", cfg.VirginTimeout.Std())
	fmt.Fprintf(w, "maxsessions=%d\n", cfg.MaxSessions)
	fmt.Fprintf(w, "newsessionswin=%t\n", cfg.NewSessionsWin)
	fmt.Fprintf(w, "filenotify=%t\n", cfg.FileNotify)
}
