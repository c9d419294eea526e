package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mschirtzinger/gitfs/internal/vcs"
)

// Fetch fetches from the specified remote and reference.
// If remote is empty, uses the upstream remote of the current branch.
func (g *Git) Fetch(ctx context.Context, remote, ref string) error {
	if !g.HasRemote() {
		return vcs.ErrNoRemote
	}

	if remote == "" {
		var err error
		if remote, _, err = g.UpstreamRef(); err != nil {
			remote = vcs.DefaultRemote
		}
	}

	args := []string{"fetch", "--quiet", remote}
	if ref != "" {
		args = append(args, ref)
	}

	if _, err := g.run(ctx, nil, args...); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}

	return nil
}

// Merge merges opts.Ref into the current branch. A merge that stops on
// conflicts is aborted so the working tree is left as it was, and
// ErrConflicts is returned.
func (g *Git) Merge(ctx context.Context, opts vcs.MergeOptions) error {
	if opts.Ref == "" {
		return fmt.Errorf("merge ref is required")
	}
	if g.IsInRebaseOrMerge() {
		return vcs.ErrMergeInProgress
	}

	args := []string{"merge", "--no-edit"}

	if opts.StrategyOption != "" {
		args = append(args, "-X", opts.StrategyOption)
	}

	if opts.Message != "" {
		args = append(args, "-m", opts.Message)
	}

	args = append(args, opts.Ref)

	_, err := g.run(ctx, committerEnv(opts.CommitterName, opts.CommitterEmail), args...)
	if err == nil {
		return nil
	}

	output := ""
	var cmdErr *vcs.CommandError
	if errors.As(err, &cmdErr) {
		output = cmdErr.Output()
	}

	if strings.Contains(output, "CONFLICT") || g.IsInRebaseOrMerge() {
		files, _ := g.GetConflictedFiles()
		if _, abortErr := g.run(ctx, nil, "merge", "--abort"); abortErr != nil {
			return fmt.Errorf("merge %s: %w (abort failed: %v)", opts.Ref, vcs.ErrConflicts, abortErr)
		}
		if len(files) > 0 {
			return fmt.Errorf("merge %s: %w in %s", opts.Ref, vcs.ErrConflicts, strings.Join(files, ", "))
		}
		return fmt.Errorf("merge %s: %w", opts.Ref, vcs.ErrConflicts)
	}

	return fmt.Errorf("git merge failed: %w", err)
}

// Push pushes changes to the remote
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	if !g.HasRemote() {
		return vcs.ErrNoRemote
	}

	remote, ref := opts.Remote, opts.Ref
	if remote == "" || ref == "" {
		upRemote, upRef, err := g.UpstreamRef()
		if err != nil {
			return err
		}
		if remote == "" {
			remote = upRemote
		}
		if ref == "" {
			branch, err := g.CurrentRef()
			if err != nil {
				return err
			}
			ref = branch + ":" + upRef
		}
	}

	if _, err := g.run(ctx, nil, "push", remote, ref); err != nil {
		var cmdErr *vcs.CommandError
		if errors.As(err, &cmdErr) {
			out := cmdErr.Output()
			if strings.Contains(out, "rejected") || strings.Contains(out, "non-fast-forward") {
				return fmt.Errorf("push %s %s: %w", remote, ref, vcs.ErrPushRejected)
			}
		}
		return fmt.Errorf("git push failed: %w", err)
	}

	return nil
}
