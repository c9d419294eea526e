// Package git provides a Git implementation of the VCS interface.
//
// This package wraps git commands to provide the operations needed by
// gitfs sync: repository discovery, staging and committing with a fixed
// identity, strategy merges of the upstream branch, and pushes.
package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mschirtzinger/gitfs/internal/vcs"
)

func init() {
	vcs.Register(vcs.TypeGit, func(repoRoot string) (vcs.VCS, error) {
		return New(repoRoot)
	})
}

// Git implements the VCS interface for git repositories.
type Git struct {
	// repoRoot is the repository root directory path
	repoRoot string

	// vcsDir is the .git directory path (the per-worktree dir for worktrees)
	vcsDir string

	// timeout bounds each git invocation
	timeout time.Duration
}

// New creates a new Git VCS instance for the given repository.
// The path should be somewhere within a git repository.
func New(path string) (*Git, error) {
	g := &Git{timeout: vcs.DefaultTimeout}

	if err := g.detect(path); err != nil {
		return nil, err
	}

	return g, nil
}

// Name returns the VCS type (git)
func (g *Git) Name() vcs.Type {
	return vcs.TypeGit
}

// Version returns the git version string
func (g *Git) Version() (string, error) {
	output, err := g.run(context.Background(), nil, "--version")
	if err != nil {
		return "", fmt.Errorf("failed to get git version: %w", err)
	}

	// Output format: "git version 2.39.0"
	return strings.TrimPrefix(vcs.TrimOutput(output), "git version "), nil
}

// RepoRoot returns the repository root directory path
func (g *Git) RepoRoot() (string, error) {
	if g.repoRoot == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.repoRoot, nil
}

// VCSDir returns the .git directory path
func (g *Git) VCSDir() (string, error) {
	if g.vcsDir == "" {
		return "", vcs.ErrNotInVCS
	}
	return g.vcsDir, nil
}

// run executes git in the repository root with optional extra environment.
func (g *Git) run(ctx context.Context, env []string, args ...string) ([]byte, error) {
	return vcs.ExecEnv(ctx, g.timeout, g.repoRoot, env, "git", args...)
}

// quiet runs a git command whose exit status is the answer:
// 0 is false, 1 is true, anything else is an error.
func (g *Git) quiet(ctx context.Context, args ...string) (bool, error) {
	_, err := g.run(ctx, nil, args...)
	if err == nil {
		return false, nil
	}
	if vcs.GetExitCode(err) == 1 {
		return true, nil
	}
	return false, err
}
