package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mschirtzinger/gitfs/internal/vcs"
)

// HasStagedChanges returns true if the index differs from HEAD.
func (g *Git) HasStagedChanges(ctx context.Context) (bool, error) {
	if _, err := g.GetCommitHash("HEAD"); err != nil {
		// Unborn branch: anything in the index is staged.
		output, err := g.run(ctx, nil, "ls-files", "--cached")
		if err != nil {
			return false, fmt.Errorf("git ls-files failed: %w", err)
		}
		return len(vcs.ParseLines(output)) > 0, nil
	}
	staged, err := g.quiet(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return false, fmt.Errorf("git diff --cached failed: %w", err)
	}
	return staged, nil
}

// Add stages files for commit. Deletions and renames are staged too, so
// a path that no longer exists is recorded as removed. Ignored paths and
// paths that vanished before ever being tracked are skipped.
func (g *Git) Add(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	paths, err := g.stageable(context.Background(), paths)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add", "-A", "--"}, paths...)
	if _, err := g.run(context.Background(), nil, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}

	return nil
}

// stageable filters paths down to those git add will accept.
func (g *Git) stageable(ctx context.Context, paths []string) ([]string, error) {
	output, err := g.run(ctx, nil, append([]string{"ls-files", "--"}, paths...)...)
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}
	tracked := vcs.ParseLines(output)

	isTracked := func(p string) bool {
		for _, t := range tracked {
			if t == p || strings.HasPrefix(t, p+"/") {
				return true
			}
		}
		return false
	}

	var existing, kept []string
	for _, p := range paths {
		if _, err := os.Lstat(filepath.Join(g.repoRoot, p)); err == nil {
			existing = append(existing, p)
		} else if isTracked(p) {
			kept = append(kept, p)
		}
	}
	if len(existing) == 0 {
		return kept, nil
	}

	// check-ignore exits 1 when nothing is ignored
	output, err = g.run(ctx, nil, append([]string{"check-ignore", "--"}, existing...)...)
	if err != nil && vcs.GetExitCode(err) != 1 {
		return nil, fmt.Errorf("git check-ignore failed: %w", err)
	}
	ignored := make(map[string]bool)
	for _, p := range vcs.ParseLines(output) {
		ignored[p] = true
	}
	for _, p := range existing {
		if !ignored[p] {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// Status returns the status of files in the working directory
func (g *Git) Status(paths ...string) ([]vcs.FileStatus, error) {
	args := []string{"status", "--porcelain"}
	if len(paths) > 0 {
		args = append(args, "--")
		args = append(args, paths...)
	}

	output, err := g.run(context.Background(), nil, args...)
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}

	var statuses []vcs.FileStatus
	for _, line := range strings.Split(string(output), "\n") {
		if len(line) < 4 {
			continue
		}

		// Parse status format: XY filename
		// X = staged status, Y = unstaged status
		statuses = append(statuses, vcs.FileStatus{
			Path:       strings.TrimSpace(line[3:]),
			Status:     parseStatusCode(line[1:2]),
			StagedCode: parseStatusCode(line[0:1]),
		})
	}

	return statuses, nil
}

// parseStatusCode converts git status code to vcs.StatusCode
func parseStatusCode(code string) vcs.StatusCode {
	switch code {
	case "M":
		return vcs.StatusModified
	case "A":
		return vcs.StatusAdded
	case "D":
		return vcs.StatusDeleted
	case "R":
		return vcs.StatusRenamed
	case "C":
		return vcs.StatusCopied
	case "?":
		return vcs.StatusUntracked
	case "!":
		return vcs.StatusIgnored
	case "U":
		return vcs.StatusConflict
	default:
		return vcs.StatusUnmodified
	}
}

// Commit records the index as a new commit.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if opts.Message == "" {
		return fmt.Errorf("commit message is required")
	}

	args := []string{"commit", "-m", opts.Message}

	if opts.Author != "" {
		args = append(args, "--author", opts.Author)
	}

	if opts.NoVerify {
		args = append(args, "--no-verify")
	}

	if _, err := g.run(ctx, committerEnv(opts.CommitterName, opts.CommitterEmail), args...); err != nil {
		var cmdErr *vcs.CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Output(), "nothing to commit") {
			return fmt.Errorf("git commit: nothing to commit")
		}
		return fmt.Errorf("git commit failed: %w", err)
	}

	return nil
}

// committerEnv overrides the committer identity for a single command.
func committerEnv(name, email string) []string {
	var env []string
	if name != "" {
		env = append(env, "GIT_COMMITTER_NAME="+name)
	}
	if email != "" {
		env = append(env, "GIT_COMMITTER_EMAIL="+email)
	}
	return env
}
