package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nullshard/hlspackager/internal/config"
	"github.com/nullshard/hlspackager/internal/llhls"
)

// Supervisor owns the set of running sessions, keyed by name. Each session
// runs its own pipeline goroutine; Supervisor only tracks lifecycle and
// periodically evicts sessions that finished more than RetentionAge ago.
type Supervisor struct {
	cfg    config.SessionConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session

	cron *cron.Cron
}

// NewSupervisor creates a Supervisor and starts its retention-sweep cron
// entry. Call Shutdown to stop every running session and the cron.
func NewSupervisor(cfg config.SessionConfig, logger *slog.Logger) (*Supervisor, error) {
	s := &Supervisor{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "session_supervisor")),
		sessions: make(map[string]*session),
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	sweepExpr := cfg.RetentionSweepCron
	if sweepExpr == "" {
		sweepExpr = "0 */5 * * * *"
	}
	if _, err := s.cron.AddFunc(sweepExpr, s.sweepRetired); err != nil {
		return nil, fmt.Errorf("session supervisor: invalid retention sweep schedule %q: %w", sweepExpr, err)
	}
	s.cron.Start()

	return s, nil
}

// Start builds and launches a new session under name. It returns
// ErrSessionExists if name is already running or retained.
func (s *Supervisor) Start(name string, cfg Config) (Status, error) {
	cfg.Name = name

	s.mu.Lock()
	if _, exists := s.sessions[name]; exists {
		s.mu.Unlock()
		return Status{}, ErrSessionExists
	}

	sess, err := newSession(cfg, s.logger)
	if err != nil {
		s.mu.Unlock()
		return Status{}, err
	}
	s.sessions[name] = sess
	s.mu.Unlock()

	sess.start()
	s.logger.Info("session started", slog.String("session", name), slog.String("mode", cfg.Mode.String()))

	return sess.status(), nil
}

// Stop cancels the named session and waits for it to finish. The session
// remains queryable until the next retention sweep.
func (s *Supervisor) Stop(name string) error {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.stop()
	s.logger.Info("session stopped", slog.String("session", name))
	return nil
}

// Status returns a snapshot of the named session.
func (s *Supervisor) Status(name string) (Status, error) {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		return Status{}, ErrSessionNotFound
	}
	return sess.status(), nil
}

// List returns a snapshot of every tracked session.
func (s *Supervisor) List() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Status, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.status())
	}
	return out
}

// Playlist returns the named session's most recently rendered media
// playlist text, for a plain (non-blocking) GET.
func (s *Supervisor) Playlist(name string) (string, error) {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		return "", ErrSessionNotFound
	}
	return sess.Playlist(), nil
}

// AwaitPlaylist parks the request until the named session's LL-HLS manager
// can satisfy req, or serves the current playlist immediately for a VOD
// session (which has no blocking-reload protocol).
func (s *Supervisor) AwaitPlaylist(ctx context.Context, name string, req llhls.BlockingRequest, skip *llhls.SkipRequest) (string, error) {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		return "", ErrSessionNotFound
	}
	if !sess.IsLive() {
		return sess.Playlist(), nil
	}
	return sess.AwaitPlaylist(ctx, req, skip)
}

// Artifact returns a retained segment, partial, or init segment's bytes
// for the named session.
func (s *Supervisor) Artifact(name, filename string) ([]byte, error) {
	s.mu.RLock()
	sess, ok := s.sessions[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	data, ok := sess.Artifact(filename)
	if !ok {
		return nil, fmt.Errorf("session %q: artifact %q not found", name, filename)
	}
	return data, nil
}

// sweepRetired removes sessions that finished more than RetentionAge ago
// from the registry, so long-lived deployments don't accumulate an
// unbounded map of completed VOD jobs.
func (s *Supervisor) sweepRetired() {
	age := s.cfg.RetentionAge
	if age <= 0 {
		age = time.Hour
	}
	cutoff := time.Now().Add(-age)

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, sess := range s.sessions {
		st := sess.status()
		if st.FinishedAt == nil || st.FinishedAt.After(cutoff) {
			continue
		}
		delete(s.sessions, name)
		s.logger.Debug("retired finished session", slog.String("session", name))
	}
}

// Shutdown stops every running session and the retention-sweep cron,
// waiting for in-flight pipelines to return.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.stop()
	}
	return nil
}
