package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// Runner is anything with a blocking Run, such as a Worker.
type Runner interface {
	Run(ctx context.Context) error
}

// SupervisorConfig holds configuration for a Supervisor.
type SupervisorConfig struct {
	// New builds a fresh runner for each attempt. Required.
	New func() (Runner, error)

	// RestartDelay is the first wait after a failure (default: 5s).
	RestartDelay time.Duration

	// MaxRestartDelay caps the doubling backoff (default: 5m).
	MaxRestartDelay time.Duration

	// StableAfter resets the backoff when a run lasted at least this long
	// (default: 1m).
	StableAfter time.Duration

	// MaxRestarts bounds consecutive restarts. 0 means unlimited.
	MaxRestarts int

	// Permanent reports errors that must not be retried, such as merge
	// conflicts that need a human. Nil treats every error as transient.
	Permanent func(error) bool

	// Observer receives an EventRestart before each restart. Optional.
	Observer Observer

	// Logger for supervisor activity. Nil discards output.
	Logger *log.Logger
}

// DefaultSupervisorConfig returns the documented defaults with New unset.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RestartDelay:    5 * time.Second,
		MaxRestartDelay: 5 * time.Minute,
		StableAfter:     time.Minute,
	}
}

// Supervisor restarts a failed runner with capped exponential backoff.
type Supervisor struct {
	config       SupervisorConfig
	currentDelay time.Duration
	restarts     int
}

// NewSupervisor creates a Supervisor. Zero durations take their defaults.
func NewSupervisor(config SupervisorConfig) (*Supervisor, error) {
	if config.New == nil {
		return nil, errors.New("supervisor needs a runner constructor")
	}
	def := DefaultSupervisorConfig()
	if config.RestartDelay <= 0 {
		config.RestartDelay = def.RestartDelay
	}
	if config.MaxRestartDelay <= 0 {
		config.MaxRestartDelay = def.MaxRestartDelay
	}
	if config.MaxRestartDelay < config.RestartDelay {
		config.MaxRestartDelay = config.RestartDelay
	}
	if config.StableAfter <= 0 {
		config.StableAfter = def.StableAfter
	}
	if config.Permanent == nil {
		config.Permanent = func(error) bool { return false }
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	return &Supervisor{config: config, currentDelay: config.RestartDelay}, nil
}

// Run keeps a runner alive until ctx is cancelled, a permanent error
// occurs, or MaxRestarts is exceeded. Cancellation returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		r, err := s.config.New()
		if err != nil {
			return fmt.Errorf("creating worker: %w", err)
		}

		started := time.Now()
		err = r.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		if s.config.Permanent(err) {
			s.config.Logger.Printf("Worker stopped, manual action required: %v", err)
			return err
		}

		if time.Since(started) >= s.config.StableAfter {
			s.resetBackoff()
		}
		s.restarts++
		if s.config.MaxRestarts > 0 && s.restarts > s.config.MaxRestarts {
			return fmt.Errorf("giving up after %d restarts: %w", s.config.MaxRestarts, err)
		}

		delay := s.getBackoffDelay()
		s.config.Logger.Printf("Worker failed: %v (restart %d in %v)", err, s.restarts, delay)
		e := newEvent(EventRestart, started)
		e.Detail = fmt.Sprintf("restart %d in %v", s.restarts, delay)
		e.Err = err
		s.config.Observer.Observe(e)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		s.advanceBackoff()
	}
}

// Restarts returns the number of consecutive restarts so far.
func (s *Supervisor) Restarts() int {
	return s.restarts
}

func (s *Supervisor) getBackoffDelay() time.Duration {
	return s.currentDelay
}

// advanceBackoff doubles the delay up to MaxRestartDelay.
func (s *Supervisor) advanceBackoff() {
	s.currentDelay *= 2
	if s.currentDelay > s.config.MaxRestartDelay {
		s.currentDelay = s.config.MaxRestartDelay
	}
}

func (s *Supervisor) resetBackoff() {
	s.currentDelay = s.config.RestartDelay
	s.restarts = 0
}
