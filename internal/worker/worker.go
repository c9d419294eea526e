package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// DefaultTimeout is how long the queue must stay quiet before the idle
// handler runs.
const DefaultTimeout = 2 * time.Second

var (
	// ErrUntrackedChannel is returned by Run when an item arrives for an
	// accumulator this worker does not track.
	ErrUntrackedChannel = errors.New("item for untracked channel")

	// ErrAccumulatorState is returned by Run when an idle handler changes
	// an accumulator between absent and present.
	ErrAccumulatorState = errors.New("idle handler changed accumulator presence")
)

// IdleFunc handles a quiet queue. It receives the accumulated batches and
// returns the batches the loop continues with.
type IdleFunc func(ctx context.Context, commits, merges Batch) (Batch, Batch, error)

// Config holds configuration for a Worker.
type Config struct {
	// Timeout is how long Take waits before the idle handler runs.
	// Values <= 0 are replaced by DefaultTimeout.
	Timeout time.Duration

	// Queue is the queue to drain. If nil the worker creates its own.
	Queue *Queue

	// DisableCommits starts the commits accumulator absent. By default it
	// starts as an empty present batch.
	DisableCommits bool

	// DisableMerges starts the merges accumulator absent. By default it
	// starts as an empty present batch.
	DisableMerges bool

	// Logger for worker activity. Nil discards output.
	Logger *log.Logger

	// Verbose enables per-item and per-tick logging.
	Verbose bool
}

// Worker runs a pull loop against one Queue.
type Worker struct {
	timeout time.Duration
	queue   *Queue
	idle    IdleFunc
	logger  *log.Logger
	verbose bool

	commitsTracked bool
	mergesTracked  bool
}

// New creates a Worker that calls idle whenever its queue is quiet.
func New(config Config, idle IdleFunc) *Worker {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Queue == nil {
		config.Queue = NewQueue()
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	if idle == nil {
		idle = func(_ context.Context, c, m Batch) (Batch, Batch, error) { return c, m, nil }
	}

	return &Worker{
		timeout:        config.Timeout,
		queue:          config.Queue,
		idle:           idle,
		logger:         config.Logger,
		verbose:        config.Verbose,
		commitsTracked: !config.DisableCommits,
		mergesTracked:  !config.DisableMerges,
	}
}

// Queue returns the queue the worker drains. Producers Put onto it.
func (w *Worker) Queue() *Queue {
	return w.queue
}

// Timeout returns the idle timeout.
func (w *Worker) Timeout() time.Duration {
	return w.timeout
}

// initial returns the accumulators a fresh loop starts with.
func (w *Worker) initial() (Batch, Batch) {
	commits, merges := Absent(), Absent()
	if w.commitsTracked {
		commits = Tracked()
	}
	if w.mergesTracked {
		merges = Tracked()
	}
	return commits, merges
}

// Run drains the queue until ctx is cancelled or the idle handler fails.
//
// It is meant to be called once per Worker. Accumulated items that have
// not reached a successful idle call are dropped when Run returns.
func (w *Worker) Run(ctx context.Context) error {
	commits, merges := w.initial()

	for {
		it, err := w.queue.Take(ctx, w.timeout)
		switch {
		case err == nil:
			commits, merges, err = w.route(it, commits, merges)
			if err != nil {
				return err
			}

		case errors.Is(err, ErrEmpty):
			if w.verbose {
				w.logger.Printf("Idle: commits=%s merges=%s", commits, merges)
			}
			commits, merges, err = w.idle(ctx, commits, merges)
			if err != nil {
				return err
			}
			if commits.IsAbsent() == w.commitsTracked || merges.IsAbsent() == w.mergesTracked {
				return ErrAccumulatorState
			}

		default:
			return err
		}
	}
}

// route appends it to the accumulator selected by its kind.
func (w *Worker) route(it Item, commits, merges Batch) (Batch, Batch, error) {
	if w.verbose {
		w.logger.Printf("Queued: %s", it)
	}

	switch it.Kind {
	case KindCommit:
		if commits.IsAbsent() {
			return commits, merges, fmt.Errorf("%w: %s", ErrUntrackedChannel, it)
		}
		return commits.Append(it), merges, nil
	case KindMerge:
		if merges.IsAbsent() {
			return commits, merges, fmt.Errorf("%w: %s", ErrUntrackedChannel, it)
		}
		return commits, merges.Append(it), nil
	default:
		return commits, merges, fmt.Errorf("unknown item kind %d", it.Kind)
	}
}
