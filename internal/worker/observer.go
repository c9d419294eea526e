package worker

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened during a sync step.
type EventKind string

const (
	EventCommit   EventKind = "commit"
	EventMerge    EventKind = "merge"
	EventPush     EventKind = "push"
	EventDeferred EventKind = "deferred"
	EventFailure  EventKind = "failure"
	EventRestart  EventKind = "restart"
)

// Event is emitted to an Observer after each sync step.
type Event struct {
	ID       string
	Kind     EventKind
	Time     time.Time
	Duration time.Duration

	// Items is the batch size for commits.
	Items int

	// Hash is the resulting commit hash, if any.
	Hash string

	// Detail is a short human-readable note (remote/ref, "up to date", ...).
	Detail string

	// Err is set for EventFailure and EventRestart.
	Err error
}

func newEvent(kind EventKind, started time.Time) Event {
	return Event{
		ID:       uuid.New().String(),
		Kind:     kind,
		Time:     started,
		Duration: time.Since(started),
	}
}

// Observer receives sync events. Observe is called from the worker
// goroutine and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

// Observe implements Observer.
func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
