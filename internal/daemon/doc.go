// Package daemon runs gitfs sync for one working tree.
//
// The daemon owns the work queue and the two coordination signals, and
// feeds the queue from three producers:
//
//   - FileWatcher: recursive fsnotify watch of the working tree, skipping
//     .git. Events are debounced per path and queued as commit items.
//   - RemotePoller: asks the remote for its branch head with ls-remote and
//     queues a merge item when HEAD does not contain it.
//   - fsops.Writer: the foreground write path, also reachable over the
//     dashboard's HTTP file API. Writes hold writeInProgress.
//
// A worker.Supervisor runs the merge worker and rebuilds it after
// transient failures. Conflicts and other errors that need a human stop
// the daemon.
//
// # Usage
//
//	config := daemon.DefaultConfig()
//	config.Identity = worker.Identity{AuthorName: "alice", AuthorEmail: "alice@example.com"}
//	config.DashboardAddr = dashboard.DefaultAddr
//
//	d, err := daemon.New(".", config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Only one daemon may run per repository; Start takes an exclusive lock on
// .git/gitfs-sync.lock and returns ErrAlreadyRunning if it is held.
package daemon
