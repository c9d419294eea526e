package worker

import (
	"context"
	"fmt"
)

// Identity carries the author and committer recorded on every commit the
// worker creates. The author is whoever made the underlying changes; the
// committer is the process doing the sync.
type Identity struct {
	AuthorName     string
	AuthorEmail    string
	CommitterName  string
	CommitterEmail string
}

// Author returns the author in "Name <email>" form, or "" if unset.
func (id Identity) Author() string {
	return formatPerson(id.AuthorName, id.AuthorEmail)
}

// Committer returns the committer in "Name <email>" form, or "" if unset.
func (id Identity) Committer() string {
	return formatPerson(id.CommitterName, id.CommitterEmail)
}

func formatPerson(name, email string) string {
	if name == "" && email == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// withDefaults fills an empty committer from the author.
func (id Identity) withDefaults() Identity {
	if id.CommitterName == "" && id.CommitterEmail == "" {
		id.CommitterName = id.AuthorName
		id.CommitterEmail = id.AuthorEmail
	}
	return id
}

// CommitOptions is passed to Repository.Commit.
type CommitOptions struct {
	Identity Identity
	Strategy string
}

// CommitResult describes a completed commit.
type CommitResult struct {
	// Hash is the new commit hash. Empty when Empty is true.
	Hash string

	// Files is the number of distinct paths staged.
	Files int

	// Empty is true when the batch produced no changes to record.
	Empty bool
}

// MergeResult describes a completed merge.
type MergeResult struct {
	// Hash is HEAD after the merge.
	Hash string

	// UpToDate is true when there was nothing to merge.
	UpToDate bool

	// FastForward is true when no merge commit was needed.
	FastForward bool
}

// PushResult describes a completed push.
type PushResult struct {
	Remote string
	Ref    string

	// Skipped is true when no remote is configured.
	Skipped bool
}

// Repository is the storage engine the merge worker drives. Each call is
// atomic from the worker's point of view: it either succeeds or leaves no
// partial state behind.
type Repository interface {
	// Commit records items, in order, as one commit.
	Commit(ctx context.Context, items []Item, opts CommitOptions) (CommitResult, error)

	// Merge integrates remote progress using strategy.
	Merge(ctx context.Context, strategy string) (MergeResult, error)

	// Push publishes local history to the remote.
	Push(ctx context.Context) (PushResult, error)
}

// SyncError records which repository primitive failed.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
