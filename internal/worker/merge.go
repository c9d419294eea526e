package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"time"
)

// MergeConfig holds configuration for a MergeWorker.
type MergeConfig struct {
	// Identity is recorded on every commit.
	Identity Identity

	// Strategy is the merge conflict policy handed to the repository.
	Strategy string

	// Repository performs commit, merge and push. Required.
	Repository Repository

	// Queue is the queue to drain. If nil the worker creates its own.
	Queue *Queue

	// WantMerge records that a merge/push cycle is owed. If nil the
	// worker owns a private Signal.
	WantMerge Flag

	// WriteInProgress is raised by foreground writers. If nil the worker
	// owns a private Signal, which stays cleared.
	WriteInProgress Flag

	// Timeout, DisableCommits and DisableMerges are passed to the
	// underlying Worker.
	Timeout        time.Duration
	DisableCommits bool
	DisableMerges  bool

	// LocalOnly keeps commits local: an owed merge is recorded but never
	// merged or pushed.
	LocalOnly bool

	// Observer receives an Event after each step. Optional.
	Observer Observer

	// Logger for merge worker activity. Nil discards output.
	Logger *log.Logger

	// Verbose logs idle ticks and deferred merges.
	Verbose bool
}

// MergeWorker is a Worker whose idle handler commits accumulated changes
// and, on quiet ticks, merges and pushes.
type MergeWorker struct {
	*Worker

	identity        Identity
	strategy        string
	repo            Repository
	wantMerge       Flag
	writeInProgress Flag
	localOnly       bool
	observer        Observer
	logger          *log.Logger
	verbose         bool
}

// NewMergeWorker creates a MergeWorker.
func NewMergeWorker(config MergeConfig) (*MergeWorker, error) {
	if config.Repository == nil {
		return nil, errors.New("repository cannot be nil")
	}
	if config.WantMerge == nil {
		config.WantMerge = NewSignal()
	}
	if config.WriteInProgress == nil {
		config.WriteInProgress = NewSignal()
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}

	mw := &MergeWorker{
		identity:        config.Identity.withDefaults(),
		strategy:        config.Strategy,
		repo:            config.Repository,
		wantMerge:       config.WantMerge,
		writeInProgress: config.WriteInProgress,
		localOnly:       config.LocalOnly,
		observer:        config.Observer,
		logger:          config.Logger,
		verbose:         config.Verbose,
	}
	mw.Worker = New(Config{
		Timeout:        config.Timeout,
		Queue:          config.Queue,
		DisableCommits: config.DisableCommits,
		DisableMerges:  config.DisableMerges,
		Logger:         config.Logger,
		Verbose:        config.Verbose,
	}, mw.OnIdle)

	return mw, nil
}

// WantMerge returns the flag recording an owed merge.
func (mw *MergeWorker) WantMerge() Flag {
	return mw.wantMerge
}

// OnIdle is the decision policy run on every quiet tick.
//
// Any activity since the last tick is committed (commits only) and
// marks a merge as owed. A tick without activity merges and pushes if a
// merge is owed and no foreground write is in progress; otherwise it
// waits for the next tick.
func (mw *MergeWorker) OnIdle(ctx context.Context, commits, merges Batch) (Batch, Batch, error) {
	hadActivity := commits.HasItems() || merges.HasItems()

	if commits.HasItems() {
		if err := mw.commit(ctx, commits.Items()); err != nil {
			return commits, merges, err
		}
		commits = commits.Drained()
	}

	// Merge notifications only say the remote moved; their content is
	// not used.
	if merges.HasItems() {
		if mw.verbose {
			mw.logger.Printf("Remote progress noted (%d notifications)", merges.Len())
		}
		merges = merges.Drained()
	}

	if hadActivity {
		mw.wantMerge.Set()
		return commits, merges, nil
	}

	if !mw.wantMerge.IsSet() || mw.localOnly {
		return commits, merges, nil
	}

	if mw.writeInProgress.IsSet() {
		if mw.verbose {
			mw.logger.Printf("Merge deferred: write in progress")
		}
		e := newEvent(EventDeferred, time.Now())
		e.Detail = "write in progress"
		mw.observer.Observe(e)
		return commits, merges, nil
	}

	if err := mw.merge(ctx); err != nil {
		return commits, merges, err
	}
	if err := mw.push(ctx); err != nil {
		return commits, merges, err
	}
	mw.wantMerge.Clear()

	return commits, merges, nil
}

func (mw *MergeWorker) commit(ctx context.Context, items []Item) error {
	started := time.Now()
	res, err := mw.repo.Commit(ctx, items, CommitOptions{
		Identity: mw.identity,
		Strategy: mw.strategy,
	})
	if err != nil {
		return mw.fail("commit", started, err)
	}

	e := newEvent(EventCommit, started)
	e.Items = len(items)
	e.Hash = res.Hash
	if res.Empty {
		e.Detail = "nothing to commit"
		mw.logger.Printf("Commit skipped: %d changes produced no diff", len(items))
	} else {
		mw.logger.Printf("Committed %d changes (%d files) as %s", len(items), res.Files, shortHash(res.Hash))
	}
	mw.observer.Observe(e)
	return nil
}

func (mw *MergeWorker) merge(ctx context.Context) error {
	started := time.Now()
	res, err := mw.repo.Merge(ctx, mw.strategy)
	if err != nil {
		return mw.fail("merge", started, err)
	}

	e := newEvent(EventMerge, started)
	e.Hash = res.Hash
	switch {
	case res.UpToDate:
		e.Detail = "up to date"
	case res.FastForward:
		e.Detail = "fast-forward"
	default:
		e.Detail = "merged"
	}
	mw.logger.Printf("Merge: %s (%s)", e.Detail, shortHash(res.Hash))
	mw.observer.Observe(e)
	return nil
}

func (mw *MergeWorker) push(ctx context.Context) error {
	started := time.Now()
	res, err := mw.repo.Push(ctx)
	if err != nil {
		return mw.fail("push", started, err)
	}

	e := newEvent(EventPush, started)
	if res.Skipped {
		e.Detail = "no remote"
		mw.logger.Printf("Push skipped: no remote configured")
	} else {
		e.Detail = res.Remote + "/" + res.Ref
		mw.logger.Printf("Pushed to %s", e.Detail)
	}
	mw.observer.Observe(e)
	return nil
}

func (mw *MergeWorker) fail(op string, started time.Time, err error) error {
	serr := &SyncError{Op: op, Err: err}
	e := newEvent(EventFailure, started)
	e.Detail = op
	e.Err = serr
	mw.logger.Printf("Error: %v", serr)
	mw.observer.Observe(e)
	return serr
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	if h == "" {
		return "-"
	}
	return h
}
