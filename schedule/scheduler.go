// Package schedule runs workout sessions on cron expressions: each session
// names a program file and a 5-field UTC spec, and a background poller
// launches due sessions through a caller-supplied start function.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultPollInterval = 5 * time.Second

// Session is one scheduled workout.
type Session struct {
	// Name identifies the session in logs and observations.
	Name string `yaml:"name"`

	// Spec is a 5-field cron expression, evaluated in UTC.
	Spec string `yaml:"spec"`

	// Program is the path of the program file to run.
	Program string `yaml:"program"`
}

// LaunchObservation records the outcome of one session launch.
type LaunchObservation struct {
	Session    string
	Program    string
	Due        time.Time
	Success    bool
	Error      string
	DurationMS int64
}

// SkipObservation records a session pass that did not launch.
type SkipObservation struct {
	Session string
	Reason  string
	Due     time.Time
}

// Observer receives scheduler signals. Implementations must be safe for
// concurrent use; launches run on their own goroutines.
type Observer interface {
	ObserveLaunch(LaunchObservation)
	ObserveSkip(SkipObservation)
}

// SchedulerConfig configures the background session runner.
type SchedulerConfig struct {
	// Sessions are the schedules to poll. Every Spec must parse.
	Sessions []Session

	// Start launches one due session. Required. It runs on a dedicated
	// goroutine per launch and may block for the whole workout.
	Start func(Session) error

	// PollInterval is how often due sessions are checked (default 5s).
	PollInterval time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer, when set, receives launch and skip signals.
	Observer Observer
}

// Scheduler periodically launches due sessions. A session whose prior
// launch is still running is skipped for that pass, not queued.
type Scheduler struct {
	sessions     []boundSession
	start        func(Session) error
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
	observer     Observer

	mu       sync.Mutex
	lastPoll time.Time
	active   map[string]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// boundSession pairs a session with its parsed cron schedule.
type boundSession struct {
	Session
	sched cron.Schedule
}

// NewScheduler validates the config, parses every session spec, and
// returns a scheduler ready to Start.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Start == nil {
		return nil, errors.New("scheduler start function is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bound := make([]boundSession, 0, len(cfg.Sessions))
	for _, sess := range cfg.Sessions {
		if sess.Name == "" {
			return nil, errors.New("session name is required")
		}
		sched, err := parseSpecUTC(sess.Spec)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", sess.Name, err)
		}
		bound = append(bound, boundSession{Session: sess, sched: sched})
	}

	return &Scheduler{
		sessions:     bound,
		start:        cfg.Start,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
		observer:     cfg.Observer,
		active:       map[string]struct{}{},
	}, nil
}

// Start begins background polling. Calling Start on a running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("scheduler is nil")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		// The first pass arms the poll window; nothing is due yet.
		_ = s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(loopCtx)
			}
		}
	}()

	_ = ctx
	return nil
}

// Stop halts background polling and waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single scheduler pass: every session whose spec fired
// in the window since the previous pass launches now. The first pass only
// records the window start.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s == nil || s.start == nil {
		return errors.New("scheduler is not configured")
	}

	now := s.now().UTC()
	s.mu.Lock()
	last := s.lastPoll
	s.lastPoll = now
	s.mu.Unlock()

	if last.IsZero() {
		return nil
	}

	for _, sess := range s.sessions {
		due := sess.sched.Next(last)
		if due.After(now) {
			continue
		}
		s.processDue(sess, due)
	}
	_ = ctx
	return nil
}

func (s *Scheduler) processDue(sess boundSession, due time.Time) {
	if s.isActive(sess.Name) {
		s.logger.Warn("session skipped, prior launch still active",
			"session", sess.Name,
			"due", due)
		if s.observer != nil {
			s.observer.ObserveSkip(SkipObservation{
				Session: sess.Name,
				Reason:  "overlap",
				Due:     due,
			})
		}
		return
	}

	s.markActive(sess.Name)
	go s.launch(sess, due)
}

// launch runs one session to completion on its own goroutine.
func (s *Scheduler) launch(sess boundSession, due time.Time) {
	defer s.unmarkActive(sess.Name)

	s.logger.Info("session launching",
		"session", sess.Name,
		"program", sess.Program,
		"due", due)

	begin := s.now()
	err := s.start(sess.Session)
	elapsed := s.now().Sub(begin)

	obs := LaunchObservation{
		Session:    sess.Name,
		Program:    sess.Program,
		Due:        due,
		Success:    err == nil,
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		obs.Error = err.Error()
		s.logger.Error("session failed",
			"session", sess.Name,
			"program", sess.Program,
			"error", err)
	} else {
		s.logger.Info("session finished",
			"session", sess.Name,
			"elapsed", elapsed)
	}

	if s.observer != nil {
		s.observer.ObserveLaunch(obs)
	}
}

func (s *Scheduler) isActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[name]
	return ok
}

func (s *Scheduler) markActive(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[name] = struct{}{}
}

func (s *Scheduler) unmarkActive(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, name)
}
