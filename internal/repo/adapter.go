// Package repo adapts a vcs.VCS into the worker.Repository the merge
// worker drives: one commit per batch, a strategy merge of the upstream
// branch, and a push.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// Merge strategies understood by the adapter.
const (
	StrategyDefault = ""
	StrategyOurs    = "ours"
	StrategyTheirs  = "theirs"
)

// DefaultMessagePrefix starts commit subjects when none is configured.
const DefaultMessagePrefix = "gitfs:"

// ErrUnknownStrategy is returned for a strategy the adapter cannot map
// to a git merge option.
var ErrUnknownStrategy = errors.New("unknown merge strategy")

// ParseStrategy normalizes a configured strategy name.
func ParseStrategy(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return StrategyDefault, nil
	case StrategyOurs:
		return StrategyOurs, nil
	case StrategyTheirs:
		return StrategyTheirs, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Config configures an Adapter.
type Config struct {
	// VCS is the repository backend (required).
	VCS vcs.VCS

	// Remote and Branch name the upstream. Empty values are resolved from
	// the current branch's tracking configuration on each call.
	Remote string
	Branch string

	// MessagePrefix starts every commit subject.
	MessagePrefix string

	// Identity is recorded as committer on merge commits. Commits take
	// their identity from worker.CommitOptions instead.
	Identity worker.Identity

	// NoVerify skips commit hooks.
	NoVerify bool

	Logger *log.Logger
}

// Adapter implements worker.Repository on top of a vcs.VCS.
type Adapter struct {
	vcs      vcs.VCS
	remote   string
	branch   string
	prefix   string
	identity worker.Identity
	noVerify bool
	logger   *log.Logger
}

var _ worker.Repository = (*Adapter)(nil)

// New creates an Adapter.
func New(config Config) (*Adapter, error) {
	if config.VCS == nil {
		return nil, fmt.Errorf("repo: VCS is required")
	}
	if config.MessagePrefix == "" {
		config.MessagePrefix = DefaultMessagePrefix
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	return &Adapter{
		vcs:      config.VCS,
		remote:   config.Remote,
		branch:   config.Branch,
		prefix:   config.MessagePrefix,
		identity: config.Identity,
		noVerify: config.NoVerify,
		logger:   config.Logger,
	}, nil
}

// upstream returns the configured remote and branch, filling blanks from
// the tracking configuration.
func (a *Adapter) upstream() (string, string, error) {
	remote, branch := a.remote, a.branch
	if remote != "" && branch != "" {
		return remote, branch, nil
	}
	upRemote, upBranch, err := a.vcs.UpstreamRef()
	if err != nil {
		return "", "", err
	}
	if remote == "" {
		remote = upRemote
	}
	if branch == "" {
		branch = upBranch
	}
	return remote, branch, nil
}

// Commit stages every distinct path in items and records them as one
// commit. A batch that leaves the index unchanged is reported as Empty.
func (a *Adapter) Commit(ctx context.Context, items []worker.Item, opts worker.CommitOptions) (worker.CommitResult, error) {
	paths := distinctPaths(items)
	if len(paths) == 0 {
		return worker.CommitResult{Empty: true}, nil
	}

	if err := a.vcs.Add(paths); err != nil {
		return worker.CommitResult{}, fmt.Errorf("stage %d paths: %w", len(paths), err)
	}

	staged, err := a.vcs.HasStagedChanges(ctx)
	if err != nil {
		return worker.CommitResult{}, err
	}
	if !staged {
		return worker.CommitResult{Files: len(paths), Empty: true}, nil
	}

	err = a.vcs.Commit(ctx, vcs.CommitOptions{
		Message:        CommitMessage(a.prefix, items),
		Author:         opts.Identity.Author(),
		CommitterName:  opts.Identity.CommitterName,
		CommitterEmail: opts.Identity.CommitterEmail,
		NoVerify:       a.noVerify,
	})
	if err != nil {
		return worker.CommitResult{}, err
	}

	hash, err := a.vcs.GetCommitHash("HEAD")
	if err != nil {
		return worker.CommitResult{}, err
	}
	return worker.CommitResult{Hash: hash, Files: len(paths)}, nil
}

// Merge fetches the upstream and merges it with strategy. When the
// upstream has nothing new the merge is skipped and UpToDate reported.
func (a *Adapter) Merge(ctx context.Context, strategy string) (worker.MergeResult, error) {
	option, err := ParseStrategy(strategy)
	if err != nil {
		return worker.MergeResult{}, err
	}

	remote, branch, err := a.upstream()
	if err != nil {
		return worker.MergeResult{}, err
	}

	if err := a.vcs.Fetch(ctx, remote, branch); err != nil {
		if errors.Is(err, vcs.ErrNoRemote) {
			return a.head(worker.MergeResult{UpToDate: true})
		}
		return worker.MergeResult{}, err
	}

	ref := remote + "/" + branch
	div, err := a.vcs.HasDivergence("HEAD", ref)
	if err != nil {
		return worker.MergeResult{}, err
	}
	if div.RemoteAhead == 0 {
		return a.head(worker.MergeResult{UpToDate: true})
	}
	if div.IsSignificant {
		a.logger.Printf("Merging %s: %d local and %d remote commits apart", ref, div.LocalAhead, div.RemoteAhead)
	}

	committerName, committerEmail := a.identity.CommitterName, a.identity.CommitterEmail
	if committerName == "" && committerEmail == "" {
		committerName, committerEmail = a.identity.AuthorName, a.identity.AuthorEmail
	}
	err = a.vcs.Merge(ctx, vcs.MergeOptions{
		Ref:            ref,
		StrategyOption: option,
		Message:        fmt.Sprintf("%s merge %s", a.prefix, ref),
		CommitterName:  committerName,
		CommitterEmail: committerEmail,
	})
	if err != nil {
		return worker.MergeResult{}, err
	}

	return a.head(worker.MergeResult{FastForward: div.LocalAhead == 0})
}

func (a *Adapter) head(res worker.MergeResult) (worker.MergeResult, error) {
	hash, err := a.vcs.GetCommitHash("HEAD")
	if err != nil {
		return worker.MergeResult{}, err
	}
	res.Hash = hash
	return res, nil
}

// Push publishes the current branch to the upstream. Without a remote
// the push is skipped.
func (a *Adapter) Push(ctx context.Context) (worker.PushResult, error) {
	if !a.vcs.HasRemote() {
		return worker.PushResult{Skipped: true}, nil
	}

	remote, branch, err := a.upstream()
	if err != nil {
		return worker.PushResult{}, err
	}
	current, err := a.vcs.CurrentRef()
	if err != nil {
		return worker.PushResult{}, err
	}
	if current == "" {
		return worker.PushResult{}, vcs.ErrDetached
	}

	err = a.vcs.Push(ctx, vcs.PushOptions{Remote: remote, Ref: current + ":" + branch})
	if errors.Is(err, vcs.ErrNoRemote) {
		return worker.PushResult{Skipped: true}, nil
	}
	if err != nil {
		return worker.PushResult{}, err
	}
	return worker.PushResult{Remote: remote, Ref: branch}, nil
}

// distinctPaths returns each non-empty path once, in first-seen order.
func distinctPaths(items []worker.Item) []string {
	seen := make(map[string]bool, len(items))
	var paths []string
	for _, it := range items {
		if it.Path == "" || seen[it.Path] {
			continue
		}
		seen[it.Path] = true
		paths = append(paths, it.Path)
	}
	return paths
}

// CommitMessage builds the message for a batch: a subject naming the
// single path or the file count, then one line per item in order.
func CommitMessage(prefix string, items []worker.Item) string {
	paths := distinctPaths(items)

	var b strings.Builder
	switch len(paths) {
	case 1:
		fmt.Fprintf(&b, "%s update %s", prefix, paths[0])
	default:
		fmt.Fprintf(&b, "%s update %d files", prefix, len(paths))
	}
	b.WriteString("\n\n")
	for _, it := range items {
		if it.Kind != worker.KindCommit {
			continue
		}
		b.WriteString(it.String())
		if it.Message != "" {
			b.WriteString(": ")
			b.WriteString(it.Message)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
