package worker

import (
	"context"
	"sync"
)

// fakeRepo records calls in order and returns configured errors.
type fakeRepo struct {
	mu    sync.Mutex
	calls []string

	commits [][]Item
	opts    []CommitOptions

	commitErr error
	mergeErr  error
	pushErr   error

	// pushed is closed after the first successful push, if non-nil.
	pushed chan struct{}
}

func (r *fakeRepo) Commit(_ context.Context, items []Item, opts CommitOptions) (CommitResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "commit")
	r.commits = append(r.commits, items)
	r.opts = append(r.opts, opts)
	if r.commitErr != nil {
		return CommitResult{}, r.commitErr
	}
	return CommitResult{Hash: "0123456789abcdef", Files: len(items)}, nil
}

func (r *fakeRepo) Merge(_ context.Context, strategy string) (MergeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "merge:"+strategy)
	if r.mergeErr != nil {
		return MergeResult{}, r.mergeErr
	}
	return MergeResult{Hash: "fedcba9876543210"}, nil
}

func (r *fakeRepo) Push(_ context.Context) (PushResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "push")
	if r.pushErr != nil {
		return PushResult{}, r.pushErr
	}
	if r.pushed != nil {
		close(r.pushed)
		r.pushed = nil
	}
	return PushResult{Remote: "origin", Ref: "main"}, nil
}

func (r *fakeRepo) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *fakeRepo) count(name string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// spyFlag counts Set and Clear calls. IsSet returns level, which Set and
// Clear do not change unless track is true.
type spyFlag struct {
	mu     sync.Mutex
	level  bool
	track  bool
	sets   int
	clears int
}

func (f *spyFlag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.track {
		f.level = true
	}
}

func (f *spyFlag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	if f.track {
		f.level = false
	}
}

func (f *spyFlag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func commitItems(paths ...string) []Item {
	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		items = append(items, NewCommitItem(p, "write"))
	}
	return items
}

func sameItems(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].Kind != b[i].Kind || a[i].Op != b[i].Op {
			return false
		}
	}
	return true
}
