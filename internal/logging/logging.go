// Package logging builds the component loggers gitfs writes through.
//
// Every component gets a standard *log.Logger with a bracketed prefix
// ("[daemon] ", "[worker] ", ...). Output goes to stderr, or to a file
// rotated by lumberjack when a log file is configured.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes.
type Options struct {
	// File is the log file path. Empty logs to stderr.
	File string

	// MaxSizeMB rotates the file once it reaches this size (default 10).
	MaxSizeMB int

	// MaxBackups is how many rotated files are kept (default 3).
	MaxBackups int

	// MaxAgeDays removes rotated files older than this. 0 keeps them.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// Output returns the writer for opts and a closer for it. The closer is
// a no-op for stderr.
func Output(opts Options) (io.Writer, func() error) {
	if opts.File == "" {
		return os.Stderr, func() error { return nil }
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 3
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return lj, lj.Close
}

// New returns a logger for component writing to w.
func New(w io.Writer, component string) *log.Logger {
	if w == nil {
		w = io.Discard
	}
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
