// Package vcs provides the version control operations gitfs sync needs.
//
// The sync worker treats the repository as a storage engine with three
// atomic primitives: commit, merge, and push. This package exposes the
// lower-level operations those primitives are built from (staging,
// fetching, divergence checks, conflict detection) behind an interface so
// the engine can be swapped or faked in tests.
//
// # Usage
//
//	v, err := vcs.Open(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := v.Fetch(ctx, "origin", ""); err != nil {
//	    return err
//	}
//	div, err := v.HasDivergence("HEAD", "origin/main")
//
// # Implementations
//
//   - internal/vcs/git: Git implementation using the git CLI
package vcs

import (
	"context"
)

// Type represents the VCS backend type
type Type string

const (
	// TypeGit indicates a git repository
	TypeGit Type = "git"
)

// String returns the string representation of the VCS type
func (t Type) String() string {
	return string(t)
}

// VCS defines the interface for version control operations.
type VCS interface {
	// Name returns the VCS type
	Name() Type

	// Version returns the VCS binary version string
	Version() (string, error)

	// RepoRoot returns the working tree root directory path.
	RepoRoot() (string, error)

	// VCSDir returns the VCS metadata directory path (.git).
	VCSDir() (string, error)

	// CurrentRef returns the current branch name, or "" when detached.
	CurrentRef() (string, error)

	// GetCommitHash returns the commit hash for the given reference.
	GetCommitHash(ref string) (string, error)

	// HasStagedChanges returns true if the index differs from HEAD.
	HasStagedChanges(ctx context.Context) (bool, error)

	// Status returns the status of files in the working directory.
	Status(paths ...string) ([]FileStatus, error)

	// Add stages files for commit, including deletions.
	Add(paths []string) error

	// Commit creates a commit with the specified options.
	Commit(ctx context.Context, opts CommitOptions) error

	// HasRemote returns true if any remote is configured
	HasRemote() bool

	// GetRemotes returns information about configured remotes
	GetRemotes() ([]RemoteInfo, error)

	// Fetch fetches from the specified remote and reference.
	Fetch(ctx context.Context, remote, ref string) error

	// Merge merges a reference into the current branch.
	// On conflict the merge is aborted and ErrConflicts returned.
	Merge(ctx context.Context, opts MergeOptions) error

	// Push pushes changes to the remote.
	Push(ctx context.Context, opts PushOptions) error

	// UpstreamRef returns the remote and branch the current branch
	// tracks, falling back to origin/<current>.
	UpstreamRef() (remote, ref string, err error)

	// RemoteHead asks the remote for the commit its branch points at,
	// without updating any local ref.
	RemoteHead(ctx context.Context, remote, branch string) (string, error)

	// IsAncestor reports whether commit is reachable from ref. An
	// unknown commit is not an ancestor.
	IsAncestor(commit, ref string) (bool, error)

	// HasDivergence checks if local and remote refs have diverged.
	HasDivergence(local, remote string) (DivergenceInfo, error)

	// IsInRebaseOrMerge returns true if a rebase or merge is in progress
	IsInRebaseOrMerge() bool

	// GetConflictedFiles returns the list of files with conflicts
	GetConflictedFiles() ([]string, error)
}

// RemoteInfo contains information about a remote repository
type RemoteInfo struct {
	// Name is the remote name (e.g., "origin")
	Name string

	// URL is the remote URL
	URL string
}

// FileStatus represents the status of a file in the working directory
type FileStatus struct {
	// Path is the file path relative to repository root
	Path string

	// Status is the working directory status
	Status StatusCode

	// StagedCode is the staging area status
	StagedCode StatusCode
}

// StatusCode represents file status codes
type StatusCode string

const (
	StatusUnmodified StatusCode = " " // No changes
	StatusModified   StatusCode = "M" // Modified
	StatusAdded      StatusCode = "A" // Added/new file
	StatusDeleted    StatusCode = "D" // Deleted
	StatusRenamed    StatusCode = "R" // Renamed
	StatusCopied     StatusCode = "C" // Copied
	StatusUntracked  StatusCode = "?" // Untracked
	StatusIgnored    StatusCode = "!" // Ignored
	StatusConflict   StatusCode = "U" // Unmerged/conflict
)

// CommitOptions configures a commit operation
type CommitOptions struct {
	// Message is the commit message (required)
	Message string

	// Author overrides the commit author ("Name <email>")
	Author string

	// CommitterName and CommitterEmail override the committer.
	CommitterName  string
	CommitterEmail string

	// NoVerify skips pre-commit hooks
	NoVerify bool
}

// MergeOptions configures a merge operation
type MergeOptions struct {
	// Ref is the reference to merge, e.g. "origin/main" (required)
	Ref string

	// StrategyOption is passed as -X (e.g. "ours", "theirs"). Empty = none.
	StrategyOption string

	// Message is the merge commit message. Empty uses git's default.
	Message string

	// CommitterName and CommitterEmail override the committer of the
	// merge commit.
	CommitterName  string
	CommitterEmail string
}

// PushOptions configures a push operation
type PushOptions struct {
	// Remote is the remote name. Empty uses the upstream remote.
	Remote string

	// Ref is the reference to push. Empty uses current branch.
	Ref string
}

// DivergenceInfo describes divergence between local and remote refs
type DivergenceInfo struct {
	// LocalAhead is the number of commits local is ahead of remote
	LocalAhead int

	// RemoteAhead is the number of commits remote is ahead of local
	RemoteAhead int

	// IsDiverged is true if both local and remote have unique commits
	IsDiverged bool

	// IsSignificant is true if divergence exceeds SignificantDivergenceThreshold.
	IsSignificant bool
}

// SignificantDivergenceThreshold is the number of commits at which
// divergence is reported as significant in status output.
const SignificantDivergenceThreshold = 5

// DefaultRemote is used when no upstream is configured.
const DefaultRemote = "origin"
