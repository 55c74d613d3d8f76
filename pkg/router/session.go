package router

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/pkg/svcerr"
)

// State is the lifecycle state of a session's child process.
type State int

const (
	// StateInactive means the child has not been started yet.
	StateInactive State = iota
	// StateRunning means the child completed its startup handshake.
	StateRunning
	// StateTerminated means the child has been stopped or has died.
	StateTerminated
)

// stopGrace is how long Stop waits for a child to exit after EOF before
// killing it.
const stopGrace = 5 * time.Second

// wdirPrefix marks arguments carrying the session's working directory,
// used for save notifications.
const wdirPrefix = "-WDIR="

// Session wraps one long-lived play-server child process. The caller
// provides the argument vector; the session adds the program path. All
// child I/O is serialised by the session mutex, so concurrent Talk calls
// never interleave on the child's pipes.
type Session struct {
	// ID is the session identifier assigned at creation.
	ID string

	// Args is the argument vector the child was started with. Immutable
	// after creation.
	Args []string

	program string
	now     func() time.Time

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	out      *bufio.Reader
	state    State
	started  time.Time
	lastUsed time.Time
	used     bool
	modified bool
}

// Snapshot is a point-in-time copy of a session's mutable state, used for
// listing and timeout decisions.
type Snapshot struct {
	ID       string
	Args     []string
	State    State
	Pid      int
	LastUsed time.Time
	Used     bool
	Modified bool
}

func newSession(id, program string, args []string, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		ID:      id,
		Args:    args,
		program: program,
		now:     now,
	}
}

func errSessionTimeout() error {
	return svcerr.New(451, "Session timed out")
}

func errCannotStart() error {
	return svcerr.New(500, "Cannot start session")
}

// Start launches the child process and performs the startup handshake: the
// first line the child writes must begin with "100". Anything else is
// logged as trace output, the child is killed, and Start fails.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return svcerr.Precondition("Session already running")
	}

	cmd := exec.Command(s.program, s.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errCannotStart()
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errCannotStart()
	}

	if err := cmd.Start(); err != nil {
		logger.Warn("Session child failed to start", "session", s.ID, "program", s.program, "error", err)
		return errCannotStart()
	}

	out := bufio.NewReader(stdout)
	greeting, err := out.ReadString('\n')
	if err != nil || !strings.HasPrefix(greeting, "100") {
		logger.Warn("Session child handshake failed", "session", s.ID, "output", strings.TrimSpace(greeting))
		s.traceRemaining(out)
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return errCannotStart()
	}

	now := s.now()
	s.cmd = cmd
	s.stdin = stdin
	s.out = out
	s.state = StateRunning
	s.started = now
	s.lastUsed = now
	s.used = false
	s.modified = false
	logger.Info("Session started", "session", s.ID, "pid", cmd.Process.Pid)
	return nil
}

// traceRemaining logs whatever the child printed after a failed handshake.
func (s *Session) traceRemaining(out *bufio.Reader) {
	for i := 0; i < 20; i++ {
		line, err := out.ReadString('\n')
		if line != "" {
			logger.Debug("Session child output", "session", s.ID, "line", strings.TrimSpace(line))
		}
		if err != nil {
			return
		}
	}
}

// Stop shuts the child down by closing its stdin, draining its output, and
// reaping it. Stopping a session that is not running is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.state != StateRunning {
		return
	}
	s.state = StateTerminated

	_ = s.stdin.Close()
	kill := time.AfterFunc(stopGrace, func() {
		_ = s.cmd.Process.Kill()
	})
	_, _ = io.Copy(io.Discard, s.out)
	err := s.cmd.Wait()
	kill.Stop()
	logger.Info("Session stopped", "session", s.ID, "error", err)
}

// Talk sends one command to the child and returns its reply. A trailing
// newline is added if absent; POST commands additionally get the "."
// multi-line terminator. Replies whose header line begins with "2" are
// multi-line and read through their own "." terminator, which is returned
// verbatim. Any I/O failure stops the session and surfaces as a
// session-timeout error.
func (s *Session) Talk(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.talkLocked(cmd)
}

func (s *Session) talkLocked(cmd string) (string, error) {
	if s.state != StateRunning {
		return "", errSessionTimeout()
	}

	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if strings.HasPrefix(cmd, "POST") {
		cmd += ".\n"
	}

	s.lastUsed = s.now()
	s.used = true
	s.modified = !strings.HasPrefix(cmd, "SAVE")

	if _, err := io.WriteString(s.stdin, cmd); err != nil {
		logger.Warn("Session write failed", "session", s.ID, "error", err)
		s.stopLocked()
		return "", errSessionTimeout()
	}

	header, err := s.out.ReadString('\n')
	if err != nil || header == "" {
		logger.Warn("Session read failed", "session", s.ID, "error", err)
		s.stopLocked()
		return "", errSessionTimeout()
	}

	reply := header
	if header[0] == '2' {
		for {
			line, err := s.out.ReadString('\n')
			if err != nil {
				logger.Warn("Session read failed", "session", s.ID, "error", err)
				s.stopLocked()
				return "", errSessionTimeout()
			}
			reply += line
			if strings.TrimRight(line, "\r\n") == "." {
				break
			}
		}
	}
	return reply, nil
}

// Save writes pending state by sending SAVE to the child. It is a no-op if
// nothing was modified since the last save. After a successful save, notify
// is called with the path of every -WDIR= argument.
func (s *Session) Save(notify func(path string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return errSessionTimeout()
	}
	if !s.modified {
		return nil
	}
	if _, err := s.talkLocked("SAVE"); err != nil {
		return err
	}

	if notify != nil {
		for _, a := range s.Args {
			if strings.HasPrefix(a, wdirPrefix) {
				notify(a[len(wdirPrefix):])
			}
		}
	}
	return nil
}

// Snapshot returns a consistent copy of the session's mutable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:       s.ID,
		Args:     s.Args,
		State:    s.state,
		LastUsed: s.lastUsed,
		Used:     s.used,
		Modified: s.modified,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		snap.Pid = s.cmd.Process.Pid
	}
	return snap
}
