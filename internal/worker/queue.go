package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrEmpty is returned by Queue.Take when nothing arrived within the timeout.
var ErrEmpty = errors.New("queue empty")

// Queue is an unbounded FIFO of Items shared by producers and one worker.
//
// Put never blocks. Take blocks for at most the given timeout.
type Queue struct {
	mu    sync.Mutex
	items []Item

	// wake holds at most one pending notification for a blocked Take.
	wake chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Put appends it to the queue.
func (q *Queue) Put(it Item) {
	q.mu.Lock()
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Take removes and returns the oldest item. If the queue stays empty for
// timeout it returns ErrEmpty. If ctx ends first it returns ctx.Err().
func (q *Queue) Take(ctx context.Context, timeout time.Duration) (Item, error) {
	if it, ok := q.pop(); ok {
		return it, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-timer.C:
			// An item may have been put between the last pop and the timer
			// firing without a wake being observed.
			if it, ok := q.pop(); ok {
				return it, nil
			}
			return Item{}, ErrEmpty
		case <-q.wake:
			if it, ok := q.pop(); ok {
				return it, nil
			}
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return it, true
}
