package vcs

import "errors"

// Common errors returned by VCS operations.
//
// Check them with errors.Is:
//
//	if errors.Is(err, vcs.ErrConflicts) {
//	    // stop syncing and ask for manual resolution
//	}
var (
	// ErrNotInVCS is returned when the path is not inside a repository.
	ErrNotInVCS = errors.New("not in a VCS repository")

	// ErrVCSNotAvailable is returned when the git binary is not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrConflicts is returned when a merge stops on conflicts that the
	// configured strategy could not resolve.
	ErrConflicts = errors.New("unresolved conflicts")

	// ErrDetached is returned when an operation requires a branch but
	// HEAD is detached.
	ErrDetached = errors.New("not on a branch")

	// ErrPushRejected is returned when the remote refuses a push,
	// typically because it has commits we have not merged yet.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrMergeInProgress is returned when a previous merge or rebase was
	// left unfinished in the working tree.
	ErrMergeInProgress = errors.New("merge or rebase already in progress")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// IsRetryable returns true if the error is likely to succeed on retry.
//
// A push rejection means the remote moved between our merge and push;
// merging again and pushing usually succeeds.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrPushRejected)
}

// IsUserActionRequired returns true if the error requires user intervention
// to resolve: conflicts, a half-finished merge, or a detached HEAD.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrConflicts),
		errors.Is(err, ErrMergeInProgress),
		errors.Is(err, ErrDetached):
		return true
	}
	return false
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires re-initialization.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotInVCS) || errors.Is(err, ErrVCSNotAvailable)
}
