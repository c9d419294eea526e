package git

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mschirtzinger/gitfs/internal/vcs"
)

// CurrentRef returns the current branch name
// Returns empty string if in detached HEAD state
func (g *Git) CurrentRef() (string, error) {
	output, err := g.run(context.Background(), nil, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		// -q makes a detached HEAD exit 1 without a message
		if vcs.GetExitCode(err) == 1 {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}

	return vcs.TrimOutput(output), nil
}

// GetCommitHash returns the commit hash for the given reference
func (g *Git) GetCommitHash(ref string) (string, error) {
	output, err := g.run(context.Background(), nil, "rev-parse", "--verify", "-q", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("failed to resolve ref %s: %w", ref, err)
	}

	return vcs.TrimOutput(output), nil
}

// UpstreamRef returns the remote and branch the current branch tracks.
// Without tracking configuration it falls back to origin/<branch>.
func (g *Git) UpstreamRef() (string, string, error) {
	branch, err := g.CurrentRef()
	if err != nil {
		return "", "", err
	}
	if branch == "" {
		return "", "", vcs.ErrDetached
	}

	ctx := context.Background()
	remote := vcs.DefaultRemote
	if output, err := g.run(ctx, nil, "config", "--get", "branch."+branch+".remote"); err == nil {
		if r := vcs.TrimOutput(output); r != "" && r != "." {
			remote = r
		}
	}

	ref := branch
	if output, err := g.run(ctx, nil, "config", "--get", "branch."+branch+".merge"); err == nil {
		if m := vcs.TrimOutput(output); m != "" {
			ref = strings.TrimPrefix(m, "refs/heads/")
		}
	}

	return remote, ref, nil
}

// HasDivergence checks if local and remote refs have diverged
func (g *Git) HasDivergence(local, remote string) (vcs.DivergenceInfo, error) {
	info := vcs.DivergenceInfo{}

	// "<ahead>\t<behind>" in a single call
	output, err := g.run(context.Background(), nil, "rev-list", "--left-right", "--count", local+"..."+remote)
	if err != nil {
		return info, fmt.Errorf("failed to count divergent commits: %w", err)
	}

	fields := strings.Fields(vcs.TrimOutput(output))
	if len(fields) != 2 {
		return info, fmt.Errorf("unexpected rev-list output %q", vcs.TrimOutput(output))
	}
	if info.LocalAhead, err = strconv.Atoi(fields[0]); err != nil {
		return info, fmt.Errorf("parse ahead count: %w", err)
	}
	if info.RemoteAhead, err = strconv.Atoi(fields[1]); err != nil {
		return info, fmt.Errorf("parse behind count: %w", err)
	}

	info.IsDiverged = info.LocalAhead > 0 && info.RemoteAhead > 0
	info.IsSignificant = (info.LocalAhead + info.RemoteAhead) >= vcs.SignificantDivergenceThreshold

	return info, nil
}

// RemoteHead asks the remote for the commit its branch points at.
// Returns "" when the branch does not exist on the remote.
func (g *Git) RemoteHead(ctx context.Context, remote, branch string) (string, error) {
	if !g.HasRemote() {
		return "", vcs.ErrNoRemote
	}

	output, err := g.run(ctx, nil, "ls-remote", "--heads", remote, "refs/heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("git ls-remote failed: %w", err)
	}

	for _, line := range vcs.ParseLines(output) {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "refs/heads/"+branch {
			return fields[0], nil
		}
	}
	return "", nil
}

// IsAncestor reports whether commit is reachable from ref.
func (g *Git) IsAncestor(commit, ref string) (bool, error) {
	_, err := g.run(context.Background(), nil, "merge-base", "--is-ancestor", commit, ref)
	switch code := vcs.GetExitCode(err); {
	case err == nil:
		return true, nil
	case code == 1:
		return false, nil
	case code == 128:
		// commit not present locally
		return false, nil
	default:
		return false, fmt.Errorf("git merge-base failed: %w", err)
	}
}
