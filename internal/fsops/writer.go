// Package fsops performs working-tree mutations on behalf of foreground
// writers and hands each change to the sync worker.
//
// Every mutation raises the write-in-progress flag for its critical
// section so the worker never merges underneath a half-written file, then
// queues a commit item for the touched path.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mschirtzinger/gitfs/internal/worker"
)

// ErrOutsideTree is returned for paths that escape the working tree or
// point into the .git directory.
var ErrOutsideTree = errors.New("path outside working tree")

// Config configures a Writer.
type Config struct {
	// Root is the working tree root (required).
	Root string

	// Queue receives one commit item per successful mutation (required).
	Queue *worker.Queue

	// WriteInProgress is held while any mutation is running (required).
	WriteInProgress worker.Flag

	Logger *log.Logger
}

// Writer is safe for concurrent use. The write-in-progress flag stays
// set until the last in-flight mutation finishes.
type Writer struct {
	root   string
	queue  *worker.Queue
	flag   worker.Flag
	logger *log.Logger

	mu       sync.Mutex
	inflight int
}

// New creates a Writer.
func New(config Config) (*Writer, error) {
	if config.Root == "" || config.Queue == nil || config.WriteInProgress == nil {
		return nil, fmt.Errorf("fsops: Root, Queue and WriteInProgress are required")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}
	return &Writer{
		root:   root,
		queue:  config.Queue,
		flag:   config.WriteInProgress,
		logger: config.Logger,
	}, nil
}

// InFlight returns the number of mutations currently running.
func (w *Writer) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight
}

func (w *Writer) begin() {
	w.mu.Lock()
	w.inflight++
	w.flag.Set()
	w.mu.Unlock()
}

func (w *Writer) end() {
	w.mu.Lock()
	w.inflight--
	if w.inflight == 0 {
		w.flag.Clear()
	}
	w.mu.Unlock()
}

// resolve maps a tree-relative path to an absolute one.
func (w *Writer) resolve(rel string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) {
		r, err := filepath.Rel(w.root, clean)
		if err != nil {
			return "", "", fmt.Errorf("%w: %s", ErrOutsideTree, rel)
		}
		clean = r
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideTree, rel)
	}
	first := strings.SplitN(clean, string(filepath.Separator), 2)[0]
	if first == ".git" {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideTree, rel)
	}
	return filepath.Join(w.root, clean), filepath.ToSlash(clean), nil
}

// do runs fn inside the critical section and, when it succeeds, queues
// one item per path before the write-in-progress flag can drop.
func (w *Writer) do(op string, fn func() error, paths ...string) error {
	w.begin()
	defer w.end()
	if err := fn(); err != nil {
		return err
	}
	for _, p := range paths {
		w.queue.Put(worker.NewCommitItem(p, op))
	}
	return nil
}

// WriteFile writes data to path, creating parent directories.
func (w *Writer) WriteFile(path string, data []byte, perm os.FileMode) error {
	abs, rel, err := w.resolve(path)
	if err != nil {
		return err
	}
	return w.do("write", func() error {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return err
		}
		return writeAtomic(abs, data, perm)
	}, rel)
}

// Remove deletes path. Directories are removed recursively.
func (w *Writer) Remove(path string) error {
	abs, rel, err := w.resolve(path)
	if err != nil {
		return err
	}
	return w.do("remove", func() error {
		if _, err := os.Lstat(abs); err != nil {
			return err
		}
		return os.RemoveAll(abs)
	}, rel)
}

// Rename moves oldpath to newpath. Both paths are queued so the commit
// records the deletion and the addition.
func (w *Writer) Rename(oldpath, newpath string) error {
	oldAbs, oldRel, err := w.resolve(oldpath)
	if err != nil {
		return err
	}
	newAbs, newRel, err := w.resolve(newpath)
	if err != nil {
		return err
	}
	return w.do("rename", func() error {
		if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
			return err
		}
		return os.Rename(oldAbs, newAbs)
	}, oldRel, newRel)
}

// Mkdir creates a directory and any missing parents. Git does not track
// empty directories, so the resulting commit item usually commits nothing.
func (w *Writer) Mkdir(path string, perm os.FileMode) error {
	abs, rel, err := w.resolve(path)
	if err != nil {
		return err
	}
	return w.do("mkdir", func() error {
		return os.MkdirAll(abs, perm)
	}, rel)
}

// writeAtomic writes through a temp file in the same directory so a
// concurrent reader never sees a truncated file.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
