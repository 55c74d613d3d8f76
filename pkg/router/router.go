package router

import (
	"strings"
	"sync"
	"time"

	"github.com/planethub/planethub/internal/ident"
	"github.com/planethub/planethub/internal/logger"
	"github.com/planethub/planethub/pkg/config"
	"github.com/planethub/planethub/pkg/metrics"
	"github.com/planethub/planethub/pkg/svcerr"
)

// Router multiplexes play-server sessions. It owns the session table and
// arbitrates conflicts between sessions; each session owns its own child
// process. The table is guarded by the router mutex, child I/O by the
// per-session mutex, so a slow child never blocks unrelated sessions.
type Router struct {
	cfg      config.RouterConfig
	ids      ident.Generator
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	sessions []*Session
	timedOut map[string]time.Time
}

// timedOutRetention bounds how long a pruned session's ID still resolves
// to a session-timeout error instead of not-found.
const timedOutRetention = time.Hour

// New creates a router spawning cfg.Server as the per-session child
// program. notifier may be nil to disable save notifications.
func New(cfg config.RouterConfig, ids ident.Generator, notifier Notifier) *Router {
	return &Router{
		cfg:      cfg,
		ids:      ids,
		notifier: notifier,
		now:      time.Now,
		timedOut: make(map[string]time.Time),
	}
}

// NewSession creates and starts a session with the given argument vector.
//
// Creation is refused with a conflict error when a running session holds a
// conflicting marker, unless the router is configured to let new sessions
// win, in which case the older session is stopped. When the session limit
// is reached a cleanup pass runs first; if still full, creation fails.
func (r *Router) NewSession(args []string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()

	for _, s := range r.sessions {
		if s.Snapshot().State != StateRunning {
			continue
		}
		if !sessionsConflict(s.Args, args) {
			continue
		}
		if !r.cfg.NewSessionsWin {
			return nil, svcerr.AlreadyExists("Session conflict")
		}
		logger.Info("Stopping conflicting session", "session", s.ID)
		s.Stop()
	}
	r.dropTerminatedLocked()

	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		return nil, svcerr.AlreadyExists("Too many sessions")
	}

	s := newSession(r.ids.ID(), r.cfg.Server, args, r.now)
	if err := s.Start(); err != nil {
		return nil, err
	}
	r.sessions = append(r.sessions, s)
	metrics.SessionStarted()
	metrics.SetActiveSessions(len(r.sessions))
	return s, nil
}

// Get returns the session with the given ID.
func (r *Router) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()
	return r.getLocked(id)
}

func (r *Router) getLocked(id string) (*Session, error) {
	for _, s := range r.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	// A session pruned by the timeout sweep reports the timeout, not
	// not-found; only IDs that never existed (or aged past retention)
	// are unknown.
	if _, ok := r.timedOut[id]; ok {
		delete(r.timedOut, id)
		return nil, errSessionTimeout()
	}
	return nil, svcerr.NotFound("Session not found")
}

// Talk forwards one command to a session's child and returns its reply.
func (r *Router) Talk(id, cmd string) (string, error) {
	s, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return s.Talk(cmd)
}

// List returns a snapshot of all sessions in creation order.
func (r *Router) List() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Config returns the router configuration, for the CONFIG command.
func (r *Router) Config() config.RouterConfig {
	return r.cfg
}

// select resolves a group selector: a plain session ID names one session, a
// "-"-prefixed conflict key selects every session whose markers conflict
// with it in wildcard mode.
func (r *Router) selectLocked(sel string) ([]*Session, error) {
	if !strings.HasPrefix(sel, "-") {
		s, err := r.getLocked(sel)
		if err != nil {
			return nil, err
		}
		return []*Session{s}, nil
	}
	var out []*Session
	for _, s := range r.sessions {
		if argsConflict(sel, s.Args, true) {
			out = append(out, s)
		}
	}
	return out, nil
}

// CloseSessions stops and removes the selected sessions, returning their IDs.
func (r *Router) CloseSessions(sel string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()

	chosen, err := r.selectLocked(sel)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(chosen))
	for _, s := range chosen {
		s.Stop()
		ids = append(ids, s.ID)
	}
	r.dropTerminatedLocked()
	return ids, nil
}

// RestartSessions stops and restarts the selected sessions. Sessions that
// fail to restart are removed; their IDs are still reported.
func (r *Router) RestartSessions(sel string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()

	chosen, err := r.selectLocked(sel)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(chosen))
	for _, s := range chosen {
		s.Stop()
		if err := s.Start(); err != nil {
			logger.Warn("Session restart failed", "session", s.ID, "error", err)
		}
		ids = append(ids, s.ID)
	}
	r.dropTerminatedLocked()
	return ids, nil
}

// SaveSessions saves the selected sessions. With notify set, the file
// service is told to forget each session's -WDIR= directory so it re-reads
// the saved state; notification failures are swallowed.
func (r *Router) SaveSessions(sel string, notify bool) ([]string, error) {
	r.mu.Lock()
	chosen, err := r.selectLocked(sel)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var fn func(path string)
	if notify && r.notifier != nil {
		fn = r.notifier.ForgetDirectory
	}

	ids := make([]string, 0, len(chosen))
	for _, s := range chosen {
		if err := s.Save(fn); err != nil {
			if len(chosen) == 1 {
				return nil, err
			}
			logger.Warn("Session save failed", "session", s.ID, "error", err)
			continue
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// Shutdown stops every session.
func (r *Router) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Stop()
	}
	r.sessions = nil
}

// cleanupLocked stops sessions whose last-access age exceeds their
// applicable timeout and prunes terminated sessions from the table. Virgin
// sessions, never talked to, time out separately from used ones.
func (r *Router) cleanupLocked() {
	now := r.now()
	for _, s := range r.sessions {
		snap := s.Snapshot()
		if snap.State != StateRunning {
			continue
		}
		limit := r.cfg.Timeout.Std()
		if !snap.Used {
			limit = r.cfg.VirginTimeout.Std()
		}
		if limit > 0 && now.Sub(snap.LastUsed) > limit {
			logger.Info("Session timed out", "session", s.ID, "used", snap.Used)
			s.Stop()
			r.timedOut[s.ID] = now
		}
	}
	for id, when := range r.timedOut {
		if now.Sub(when) > timedOutRetention {
			delete(r.timedOut, id)
		}
	}
	r.dropTerminatedLocked()
}

func (r *Router) dropTerminatedLocked() {
	kept := r.sessions[:0]
	for _, s := range r.sessions {
		if s.Snapshot().State != StateTerminated {
			kept = append(kept, s)
		}
	}
	r.sessions = kept
	metrics.SetActiveSessions(len(r.sessions))
}
