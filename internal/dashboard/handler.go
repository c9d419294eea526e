package dashboard

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/mschirtzinger/gitfs/internal/history"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// StatsData contains running sync totals since the daemon started.
type StatsData struct {
	Counts     map[worker.EventKind]int `json:"counts"`
	LastCommit *history.Record          `json:"last_commit,omitempty"`
	LastMerge  *history.Record          `json:"last_merge,omitempty"`
	LastPush   *history.Record          `json:"last_push,omitempty"`
	LastError  *history.Record          `json:"last_error,omitempty"`
}

// Handler turns worker events into dashboard messages. It implements
// worker.Observer and bridges the worker to the WebSocket server.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server.
// New clients receive the current stats as their welcome message.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{Counts: make(map[worker.EventKind]int)},
	}
	server.welcome = h.statsMessage
	return h
}

// Observe implements worker.Observer.
func (h *Handler) Observe(e worker.Event) {
	rec := history.FromEvent(e)

	h.mu.Lock()
	h.stats.Counts[e.Kind]++
	switch e.Kind {
	case worker.EventCommit:
		h.stats.LastCommit = &rec
	case worker.EventMerge:
		h.stats.LastMerge = &rec
	case worker.EventPush:
		h.stats.LastPush = &rec
	case worker.EventFailure, worker.EventRestart:
		h.stats.LastError = &rec
	}
	h.mu.Unlock()

	dataJSON, err := json.Marshal(rec)
	if err != nil {
		h.logger.Printf("Failed to marshal event: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeSyncEvent,
		Timestamp: e.Time,
		Data:      dataJSON,
	})
	h.server.Broadcast(h.statsMessage())
}

// GetStats returns a copy of the current statistics.
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.stats
	out.Counts = make(map[worker.EventKind]int, len(h.stats.Counts))
	for k, v := range h.stats.Counts {
		out.Counts[k] = v
	}
	return out
}

func (h *Handler) statsMessage() Message {
	dataJSON, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
	}
	return Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	}
}
