package worker

import "sync/atomic"

// Signal is a level-triggered boolean flag shared between goroutines.
//
// It is advisory: nothing blocks on it. A Set followed by a Clear before
// any reader looks is simply lost; only the current level matters.
type Signal struct {
	level atomic.Bool
}

// NewSignal returns a cleared Signal.
func NewSignal() *Signal {
	return &Signal{}
}

// Set raises the flag. Idempotent.
func (s *Signal) Set() {
	s.level.Store(true)
}

// Clear lowers the flag. Idempotent.
func (s *Signal) Clear() {
	s.level.Store(false)
}

// IsSet reports the current level.
func (s *Signal) IsSet() bool {
	return s.level.Load()
}

// Flag is the view of a Signal the merge worker needs. Tests substitute
// spies that count calls.
type Flag interface {
	Set()
	Clear()
	IsSet() bool
}

var _ Flag = (*Signal)(nil)
