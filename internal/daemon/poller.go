package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// DefaultPollInterval is how often the remote is checked for progress.
const DefaultPollInterval = 30 * time.Second

// PollerConfig configures a RemotePoller.
type PollerConfig struct {
	// VCS is the repository to poll for (required).
	VCS vcs.VCS

	// Queue receives a merge item when the remote advances (required).
	Queue *worker.Queue

	// Remote and Branch name the upstream. Empty values come from the
	// current branch's tracking configuration.
	Remote string
	Branch string

	// Interval between polls. Defaults to DefaultPollInterval.
	Interval time.Duration

	Logger  *log.Logger
	Verbose bool
}

// RemotePoller notices commits pushed to the upstream by other clones and
// tells the worker a merge is due. It only reads the remote; fetching and
// merging stay with the worker.
type RemotePoller struct {
	config PollerConfig

	// notified is the remote head already announced, so a remote that
	// stays ahead is not re-queued on every poll.
	notified string
}

// NewRemotePoller creates a RemotePoller.
func NewRemotePoller(config PollerConfig) (*RemotePoller, error) {
	if config.VCS == nil || config.Queue == nil {
		return nil, fmt.Errorf("poller: VCS and Queue are required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	return &RemotePoller{config: config}, nil
}

// Run polls until ctx is cancelled.
func (p *RemotePoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			queued, err := p.Poll(ctx)
			switch {
			case errors.Is(err, vcs.ErrNoRemote):
				if p.config.Verbose {
					p.config.Logger.Printf("No remote configured, not polling")
				}
			case err != nil:
				// Log error but continue polling
				p.config.Logger.Printf("Warning: remote poll failed: %v", err)
			case queued && p.config.Verbose:
				p.config.Logger.Printf("Remote advanced, merge queued")
			}
		}
	}
}

// Poll checks the remote once and queues a merge item when it has a
// commit the local branch does not contain. Returns true if queued.
func (p *RemotePoller) Poll(ctx context.Context) (bool, error) {
	remote, branch := p.config.Remote, p.config.Branch
	if remote == "" || branch == "" {
		upRemote, upBranch, err := p.config.VCS.UpstreamRef()
		if err != nil {
			return false, err
		}
		if remote == "" {
			remote = upRemote
		}
		if branch == "" {
			branch = upBranch
		}
	}

	head, err := p.config.VCS.RemoteHead(ctx, remote, branch)
	if err != nil || head == "" || head == p.notified {
		return false, err
	}

	contained, err := p.config.VCS.IsAncestor(head, "HEAD")
	if err != nil {
		return false, err
	}
	if contained {
		p.notified = head
		return false, nil
	}

	p.notified = head
	p.config.Queue.Put(worker.NewMergeItem(fmt.Sprintf("%s/%s at %s", remote, branch, shortHash(head))))
	return true, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
