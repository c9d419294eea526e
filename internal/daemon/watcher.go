package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
	// OpRename indicates a file was moved away from this path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "write"
	case OpDelete:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileEvent represents a change somewhere in the working tree.
type FileEvent struct {
	// Path is relative to the watched root, with forward slashes.
	Path string
	// Op is the operation that occurred.
	Op EventOp
}

// FileWatcher watches a working tree recursively, skipping the .git
// directory. Directories created after Start are watched as they appear.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	root    string
}

// NewFileWatcher creates a new FileWatcher instance.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 256),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching root and every directory below it.
func (fw *FileWatcher) Start(root string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	fw.root = abs

	if err := fw.addTree(abs, false); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching for file system events and cleans up resources.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	// Closing the underlying watcher unblocks the event loop.
	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel that emits FileEvent notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel that emits error notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// addTree watches dir and its subdirectories. With emit set, files
// already present are reported as created; they may have been written
// before the watch on their directory existed.
func (fw *FileWatcher) addTree(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Vanished while walking.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, ok := fw.rel(path)
		if path != fw.root && (!ok || skipPath(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return fw.watcher.Add(path)
		}
		if emit {
			fw.emit(FileEvent{Path: rel, Op: OpCreate})
		}
		return nil
	})
}

// processEvents is the main event loop that processes fsnotify events
// and converts them to FileEvent notifications.
func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			fileEvent, ok := fw.convertEvent(event)
			if !ok {
				continue
			}

			if fileEvent.Op == OpCreate {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := fw.addTree(event.Name, true); err != nil {
						fw.sendError(err)
					}
					continue
				}
			}
			fw.emit(fileEvent)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.sendError(err)
		}
	}
}

func (fw *FileWatcher) emit(e FileEvent) {
	select {
	case fw.events <- e:
	case <-fw.done:
	}
}

func (fw *FileWatcher) sendError(err error) {
	select {
	case fw.errors <- err:
	case <-fw.done:
	}
}

// convertEvent converts an fsnotify event to a FileEvent.
// Returns (FileEvent, true) if the event should be processed,
// or (FileEvent{}, false) if the event should be ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	rel, ok := fw.rel(event.Name)
	if !ok || skipPath(rel) {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// The new name arrives as a separate create.
		op = OpRename
	default:
		// Ignore chmod
		return FileEvent{}, false
	}

	return FileEvent{Path: rel, Op: op}, true
}

// rel returns path relative to the watched root in slash form.
func (fw *FileWatcher) rel(path string) (string, bool) {
	r, err := filepath.Rel(fw.root, path)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// skipPath reports paths that never become commit items: anything under
// .git, and the temp files fsops writes through.
func skipPath(rel string) bool {
	first, _, _ := strings.Cut(rel, "/")
	if first == ".git" {
		return true
	}
	base := rel[strings.LastIndex(rel, "/")+1:]
	return strings.HasPrefix(base, ".") && strings.Contains(base, ".tmp-")
}
