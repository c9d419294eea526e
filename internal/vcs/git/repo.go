package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mschirtzinger/gitfs/internal/vcs"
)

// detect populates git repository information
func (g *Git) detect(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	output, err := vcs.ExecContext(context.Background(), g.timeout, absPath,
		"git", "rev-parse", "--git-dir", "--show-toplevel")
	if err != nil {
		if vcs.IsFatal(err) {
			return err
		}
		return vcs.ErrNotInVCS
	}

	lines := vcs.ParseLines(output)
	if len(lines) < 2 {
		return fmt.Errorf("unexpected git rev-parse output: got %d lines, expected 2", len(lines))
	}

	// For a linked worktree --git-dir is the per-worktree directory, which
	// is where lock, history and merge state belong.
	gitDir, repoRoot := lines[0], lines[1]
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(absPath, gitDir)
	}

	g.vcsDir = filepath.Clean(gitDir)
	g.repoRoot = normalizeRepoRoot(repoRoot)
	return nil
}

// normalizeRepoRoot resolves symlinks so paths reported by fsnotify
// and by git compare equal.
func normalizeRepoRoot(path string) string {
	path = filepath.FromSlash(path)

	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	return path
}

// HasRemote returns true if any remote is configured
func (g *Git) HasRemote() bool {
	output, err := g.run(context.Background(), nil, "remote")
	if err != nil {
		return false
	}
	return len(vcs.ParseLines(output)) > 0
}

// GetRemotes returns information about configured remotes
func (g *Git) GetRemotes() ([]vcs.RemoteInfo, error) {
	output, err := g.run(context.Background(), nil, "remote", "-v")
	if err != nil {
		return nil, fmt.Errorf("git remote -v failed: %w", err)
	}

	// Parse output: "origin url (fetch)"
	var result []vcs.RemoteInfo
	seen := make(map[string]bool)
	for _, line := range vcs.ParseLines(output) {
		parts := strings.Fields(line)
		if len(parts) < 2 || seen[parts[0]] {
			continue
		}
		seen[parts[0]] = true
		result = append(result, vcs.RemoteInfo{Name: parts[0], URL: parts[1]})
	}

	return result, nil
}

// IsInRebaseOrMerge returns true if currently in a rebase or merge operation
func (g *Git) IsInRebaseOrMerge() bool {
	for _, marker := range []string{"rebase-merge", "rebase-apply", "MERGE_HEAD"} {
		if _, err := os.Stat(filepath.Join(g.vcsDir, marker)); err == nil {
			return true
		}
	}
	return false
}

// GetConflictedFiles returns the list of files with conflicts
func (g *Git) GetConflictedFiles() ([]string, error) {
	output, err := g.run(context.Background(), nil, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}
	return vcs.ParseLines(output), nil
}
