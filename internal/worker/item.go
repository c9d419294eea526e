package worker

import (
	"fmt"
	"time"
)

// Kind identifies which accumulator an Item is routed to.
type Kind int

const (
	// KindCommit is a change in the working tree that should be committed.
	KindCommit Kind = iota
	// KindMerge notifies that the remote has progressed and a merge is due.
	KindMerge
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// Item is a unit of work placed on a Queue.
type Item struct {
	// Kind selects the accumulator.
	Kind Kind

	// Path is the working-tree path the change touched, relative to the
	// repository root. Empty for merge notifications.
	Path string

	// Op names the mutation (write, remove, rename, mkdir, fetch).
	Op string

	// Message is an optional free-form description carried into the
	// commit message.
	Message string

	// QueuedAt is when the item was created.
	QueuedAt time.Time
}

// NewCommitItem returns a KindCommit item for path.
func NewCommitItem(path, op string) Item {
	return Item{Kind: KindCommit, Path: path, Op: op, QueuedAt: time.Now()}
}

// NewMergeItem returns a KindMerge notification.
func NewMergeItem(message string) Item {
	return Item{Kind: KindMerge, Op: "fetch", Message: message, QueuedAt: time.Now()}
}

// String returns a short description used in logs and commit messages.
func (it Item) String() string {
	if it.Path == "" {
		return fmt.Sprintf("%s %s", it.Kind, it.Op)
	}
	return fmt.Sprintf("%s %s", it.Op, it.Path)
}

// Batch is an accumulator of items.
//
// The zero value is absent: the channel is not in use for this worker.
// A tracked Batch is present even when it holds no items, meaning the
// channel is in use and currently drained. A Batch never changes between
// absent and present.
type Batch struct {
	items   []Item
	tracked bool
}

// Absent returns an absent Batch.
func Absent() Batch {
	return Batch{}
}

// Tracked returns a present Batch holding items.
func Tracked(items ...Item) Batch {
	b := Batch{tracked: true, items: make([]Item, 0, len(items))}
	b.items = append(b.items, items...)
	return b
}

// IsAbsent reports whether the channel is not in use.
func (b Batch) IsAbsent() bool {
	return !b.tracked
}

// Len returns the number of items. An absent Batch has length 0.
func (b Batch) Len() int {
	return len(b.items)
}

// HasItems reports whether the Batch is present and non-empty.
func (b Batch) HasItems() bool {
	return b.tracked && len(b.items) > 0
}

// Items returns a copy of the items in arrival order.
func (b Batch) Items() []Item {
	out := make([]Item, len(b.items))
	copy(out, b.items)
	return out
}

// Append returns b with it added at the end. Appending to an absent
// Batch is a contract violation and panics.
func (b Batch) Append(it Item) Batch {
	if !b.tracked {
		panic("worker: append to absent batch")
	}
	b.items = append(b.items, it)
	return b
}

// Drained returns the empty form of b: still present if b was present,
// still absent otherwise.
func (b Batch) Drained() Batch {
	if !b.tracked {
		return Batch{}
	}
	return Batch{tracked: true, items: []Item{}}
}

// String implements fmt.Stringer for logs.
func (b Batch) String() string {
	if !b.tracked {
		return "absent"
	}
	return fmt.Sprintf("%d items", len(b.items))
}
