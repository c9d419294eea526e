// Package worker provides the background coordination engine for gitfs sync.
//
// A Worker drains a Queue of change descriptors into accumulators and hands
// them to an idle handler whenever the queue has been quiet for a timeout.
// The MergeWorker specialization decides on every idle tick whether to
// commit, merge, push, or do nothing.
//
// # Coordination
//
// Foreground writers and the merge worker never share a lock. They
// coordinate through two level-triggered Signals:
//
//   - wantMerge: set by the merge worker after any activity tick, cleared
//     after a successful merge and push.
//   - writeInProgress: set by the foreground write path around each
//     mutation. The merge worker postpones merging while it is set.
//
// # Polling
//
// Queue.Take blocks for at most the worker timeout, so the idle handler
// runs periodically even when nothing arrives. Small changes arriving
// across several ticks are committed per tick and merged/pushed together
// on the first quiet tick.
//
// # Usage
//
//	mw, err := worker.NewMergeWorker(worker.MergeConfig{
//	    Identity:   worker.Identity{AuthorName: "alice", AuthorEmail: "alice@example.com"},
//	    Strategy:   "ours",
//	    Repository: adapter,
//	})
//	if err != nil {
//	    return err
//	}
//	mw.Queue().Put(worker.NewCommitItem("notes/todo.md", "write"))
//	err = mw.Run(ctx)
//
// Errors from commit, merge, or push end Run. Wrap the worker in a
// Supervisor to restart it with backoff.
package worker
