package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/mschirtzinger/gitfs/internal/dashboard"
	"github.com/mschirtzinger/gitfs/internal/fsops"
	"github.com/mschirtzinger/gitfs/internal/history"
	"github.com/mschirtzinger/gitfs/internal/repo"
	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// LockFileName is created inside the git directory while a daemon runs.
const LockFileName = "gitfs-sync.lock"

// ErrAlreadyRunning is returned by Start when another daemon holds the
// repository lock.
var ErrAlreadyRunning = errors.New("another sync daemon is running for this repository")

// Config holds configuration for the daemon.
type Config struct {
	// Identity is recorded on every commit the daemon makes.
	Identity worker.Identity

	// Strategy resolves merge conflicts: "", "default", "ours" or "theirs".
	Strategy string

	// Remote and Branch name the upstream. Empty values follow the
	// current branch's tracking configuration.
	Remote string
	Branch string

	// MessagePrefix starts every commit subject.
	MessagePrefix string

	// NoVerify skips commit hooks.
	NoVerify bool

	// Timeout is how long the queue must stay quiet before the worker
	// commits, merges or pushes.
	Timeout time.Duration

	// DebounceInterval coalesces bursts of watcher events per path.
	DebounceInterval time.Duration

	// PollInterval is how often the remote is checked. Negative disables
	// polling.
	PollInterval time.Duration

	DisableCommits bool
	DisableWatcher bool

	// DisableMerges keeps commits local: the remote is neither polled,
	// merged nor pushed to.
	DisableMerges bool

	// Supervisor backoff. Zero values take the worker package defaults.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	MaxRestarts     int

	// DisableHistory skips the SQLite ledger.
	DisableHistory bool

	// HistoryRetention prunes older ledger entries at startup. Zero keeps
	// everything.
	HistoryRetention time.Duration

	// DashboardAddr enables the dashboard when non-empty.
	DashboardAddr string

	// Logger for daemon activity
	Logger *log.Logger

	Verbose bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Strategy:         "default",
		MessagePrefix:    repo.DefaultMessagePrefix,
		Timeout:          worker.DefaultTimeout,
		DebounceInterval: 100 * time.Millisecond,
		PollInterval:     DefaultPollInterval,
		HistoryRetention: 30 * 24 * time.Hour,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// IsRunning reports whether a daemon holds the lock for the repository
// whose git directory is gitDir.
func IsRunning(gitDir string) (bool, error) {
	lock := flock.New(filepath.Join(gitDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("checking lock: %w", err)
	}
	if locked {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// pendingChange is a watcher event waiting out the debounce interval.
type pendingChange struct {
	op string
	at time.Time
}

// Daemon wires the sync worker to its producers: the file watcher, the
// remote poller and the foreground writer.
type Daemon struct {
	vcs    vcs.VCS
	root   string
	gitDir string
	config *Config

	queue     *worker.Queue
	wantMerge *worker.Signal
	writing   *worker.Signal
	writer    *fsops.Writer

	lock      *flock.Flock
	history   *history.Store
	dashboard *dashboard.Server
	stats     *dashboard.Handler
	watcher   *FileWatcher

	changeQueue   map[string]pendingChange
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the repository containing repoPath and prepares a daemon.
// Nothing runs until Start.
func New(repoPath string, config *Config) (*Daemon, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if _, err := repo.ParseStrategy(config.Strategy); err != nil {
		return nil, err
	}

	v, err := vcs.Open(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	root, err := v.RepoRoot()
	if err != nil {
		return nil, err
	}
	gitDir, err := v.VCSDir()
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		vcs:         v,
		root:        root,
		gitDir:      gitDir,
		config:      config,
		queue:       worker.NewQueue(),
		wantMerge:   worker.NewSignal(),
		writing:     worker.NewSignal(),
		lock:        flock.New(filepath.Join(gitDir, LockFileName)),
		changeQueue: make(map[string]pendingChange),
	}
	d.writer, err = fsops.New(fsops.Config{
		Root:            root,
		Queue:           d.queue,
		WriteInProgress: d.writing,
		Logger:          d.componentLogger("fsops"),
	})
	if err != nil {
		return nil, err
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Root returns the working tree being synced.
func (d *Daemon) Root() string { return d.root }

// Queue returns the work queue shared by every producer.
func (d *Daemon) Queue() *worker.Queue { return d.queue }

// Writer returns the foreground writer. Writes through it hold the
// write-in-progress flag, which defers merges until they finish.
func (d *Daemon) Writer() *fsops.Writer { return d.writer }

func (d *Daemon) componentLogger(name string) *log.Logger {
	return log.New(d.config.Logger.Writer(), "["+name+"] ", d.config.Logger.Flags())
}

// Start runs the daemon. It blocks until ctx is cancelled, Stop is
// called, or the supervisor gives up; only the last case returns an
// error.
func (d *Daemon) Start(ctx context.Context) error {
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	defer func() { _ = d.lock.Unlock() }()

	d.config.Logger.Printf("Starting daemon for %s", d.root)
	if version, err := d.vcs.Version(); err == nil {
		d.config.Logger.Printf("Using git %s", version)
	}

	go func() {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Shutdown signal received")
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	observers, err := d.startObservers()
	if err != nil {
		d.cleanup()
		return err
	}

	if !d.config.DisableWatcher && !d.config.DisableCommits {
		if err := d.startWatcher(); err != nil {
			d.cleanup()
			return err
		}
	}
	if !d.config.DisableMerges && d.config.PollInterval >= 0 {
		if err := d.startPoller(); err != nil {
			d.cleanup()
			return err
		}
	}

	sup, err := worker.NewSupervisor(worker.SupervisorConfig{
		New:             func() (worker.Runner, error) { return d.newWorker(observers) },
		RestartDelay:    d.config.RestartDelay,
		MaxRestartDelay: d.config.MaxRestartDelay,
		MaxRestarts:     d.config.MaxRestarts,
		Permanent: func(err error) bool {
			return vcs.IsUserActionRequired(err) || vcs.IsFatal(err)
		},
		Observer: observers,
		Logger:   d.componentLogger("supervisor"),
	})
	if err != nil {
		d.cleanup()
		return err
	}

	err = sup.Run(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Sync stopped after %d restarts: %v", sup.Restarts(), err)
	}
	d.cleanup()
	return err
}

// Stop asks a running daemon to shut down. Start returns once every
// component has stopped.
func (d *Daemon) Stop() {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()
}

func (d *Daemon) startObservers() (worker.Observers, error) {
	var observers worker.Observers

	if !d.config.DisableHistory {
		store, err := history.Open(filepath.Join(d.gitDir, history.FileName))
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		store.SetLogger(d.componentLogger("history"))
		d.history = store
		if d.config.HistoryRetention > 0 {
			n, err := store.Prune(d.ctx, time.Now().Add(-d.config.HistoryRetention))
			if err != nil {
				d.config.Logger.Printf("Warning: failed to prune history: %v", err)
			} else if n > 0 {
				d.config.Logger.Printf("Pruned %d history entries", n)
			}
		}
		observers = append(observers, store)
	}

	if d.config.DashboardAddr != "" {
		config := dashboard.Config{
			Addr:   d.config.DashboardAddr,
			Files:  d.writer,
			Logger: d.componentLogger("dashboard"),
		}
		if d.history != nil {
			config.Events = d.history
		}
		d.dashboard = dashboard.NewServer(config)
		d.stats = dashboard.NewHandler(d.dashboard, config.Logger)
		if err := d.dashboard.Start(); err != nil {
			d.dashboard = nil
			return nil, err
		}
		d.config.Logger.Printf("Dashboard listening on http://%s", d.dashboard.GetAddr())
		observers = append(observers, d.stats)
	}

	return observers, nil
}

func (d *Daemon) startWatcher() error {
	fw, err := NewFileWatcher()
	if err != nil {
		return err
	}
	if err := fw.Start(d.root); err != nil {
		return err
	}
	d.watcher = fw
	d.config.Logger.Printf("Watching: %s", d.root)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	return nil
}

func (d *Daemon) startPoller() error {
	p, err := NewRemotePoller(PollerConfig{
		VCS:      d.vcs,
		Queue:    d.queue,
		Remote:   d.config.Remote,
		Branch:   d.config.Branch,
		Interval: d.config.PollInterval,
		Logger:   d.componentLogger("poller"),
		Verbose:  d.config.Verbose,
	})
	if err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := p.Run(d.ctx); err != nil {
			d.config.Logger.Printf("Poller stopped: %v", err)
		}
	}()
	return nil
}

// newWorker builds a fresh adapter and merge worker for one supervisor
// attempt. The queue and signals outlive every attempt.
func (d *Daemon) newWorker(observer worker.Observer) (worker.Runner, error) {
	logger := d.componentLogger("worker")
	adapter, err := repo.New(repo.Config{
		VCS:           d.vcs,
		Remote:        d.config.Remote,
		Branch:        d.config.Branch,
		MessagePrefix: d.config.MessagePrefix,
		Identity:      d.config.Identity,
		NoVerify:      d.config.NoVerify,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	strategy, _ := repo.ParseStrategy(d.config.Strategy)

	return worker.NewMergeWorker(worker.MergeConfig{
		Identity:        d.config.Identity,
		Strategy:        strategy,
		Repository:      adapter,
		Queue:           d.queue,
		WantMerge:       d.wantMerge,
		WriteInProgress: d.writing,
		Timeout:         d.config.Timeout,
		DisableCommits:  d.config.DisableCommits,
		DisableMerges:   d.config.DisableMerges,
		LocalOnly:       d.config.DisableMerges,
		Observer:        observer,
		Logger:          logger,
		Verbose:         d.config.Verbose,
	})
}

// watchFileEvents moves watcher events into the debounce queue.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if d.config.Verbose {
				d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			}
			d.queueChange(event.Path, event.Op.String())

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records a change, restarting the path's debounce window.
func (d *Daemon) queueChange(path, op string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = pendingChange{op: op, at: time.Now()}
}

// processChangeQueue flushes settled changes to the work queue.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	interval := d.config.DebounceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges(interval)
		}
	}
}

// processPendingChanges queues a commit item for every path that has been
// quiet for at least the debounce interval. Returns the number queued.
func (d *Daemon) processPendingChanges(interval time.Duration) int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	queued := 0
	for path, change := range d.changeQueue {
		if now.Sub(change.at) < interval {
			continue
		}
		d.queue.Put(worker.NewCommitItem(path, change.op))
		delete(d.changeQueue, path)
		queued++
	}
	return queued
}

// cleanup stops every component started by Start.
func (d *Daemon) cleanup() {
	d.cancel()

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
	}

	d.wg.Wait()

	if d.dashboard != nil {
		if err := d.dashboard.Stop(); err != nil {
			d.config.Logger.Printf("Error stopping dashboard: %v", err)
		}
	}
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			d.config.Logger.Printf("Error closing history: %v", err)
		}
	}

	d.config.Logger.Println("Daemon stopped")
}
