// Package history keeps a SQLite ledger of sync events.
//
// The ledger lives next to the repository metadata (.git/gitfs-sync.db)
// so `gitfs status` can report the last commit, merge and push without
// talking to the running daemon. It is a record, not a source of truth:
// losing it loses nothing but history.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/gitfs/internal/worker"
)

// FileName is the ledger's name inside the git directory.
const FileName = "gitfs-sync.db"

// timeFormat is fixed width so stored times sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one stored event.
type Record struct {
	ID       string           `json:"id" yaml:"id"`
	Kind     worker.EventKind `json:"kind" yaml:"kind"`
	Time     time.Time        `json:"time" yaml:"time"`
	Duration time.Duration    `json:"duration" yaml:"duration"`
	Items    int              `json:"items,omitempty" yaml:"items,omitempty"`
	Hash     string           `json:"hash,omitempty" yaml:"hash,omitempty"`
	Detail   string           `json:"detail,omitempty" yaml:"detail,omitempty"`
	Error    string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// FromEvent converts a worker event to a Record.
func FromEvent(e worker.Event) Record {
	r := Record{
		ID:       e.ID,
		Kind:     e.Kind,
		Time:     e.Time,
		Duration: e.Duration,
		Items:    e.Items,
		Hash:     e.Hash,
		Detail:   e.Detail,
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	return r
}

// Store wraps the ledger database.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open opens (creating if needed) the ledger at path and initializes
// the schema. ":memory:" opens a private in-memory ledger.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	connStr := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		connStr = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}

	// One writer (the worker goroutine) and occasional readers. An
	// in-memory database exists per connection, so it must stay at one.
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(4)
	}
	conn.SetMaxIdleConns(1)

	s := &Store{conn: conn, path: path, logger: log.New(io.Discard, "", 0)}

	if path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// SetLogger sets where Observe reports write failures.
func (s *Store) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Path returns the ledger path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the ledger.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if s.path != ":memory:" {
		if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
		}
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		time TEXT NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		items INTEGER NOT NULL DEFAULT 0,
		hash TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
	CREATE INDEX IF NOT EXISTS idx_events_kind_time ON events(kind, time);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Record stores r. Recording the same ID twice keeps the first.
func (s *Store) Record(ctx context.Context, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO events (id, kind, time, duration_ns, items, hash, detail, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`,
		r.ID,
		string(r.Kind),
		r.Time.UTC().Format(timeFormat),
		int64(r.Duration),
		r.Items,
		r.Hash,
		r.Detail,
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record event %s: %w", r.ID, err)
	}
	return nil
}

// Observe implements worker.Observer. Write failures are logged, never
// returned to the worker.
func (s *Store) Observe(e worker.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, FromEvent(e)); err != nil {
		s.logger.Printf("Warning: %v", err)
	}
}

const selectColumns = `SELECT id, kind, time, duration_ns, items, hash, detail, error FROM events`

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, selectColumns+` ORDER BY time DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastOf returns the newest record of kind. ok is false when there is none.
func (s *Store) LastOf(ctx context.Context, kind worker.EventKind) (r Record, ok bool, err error) {
	row := s.conn.QueryRowContext(ctx, selectColumns+` WHERE kind = ? ORDER BY time DESC, rowid DESC LIMIT 1`, string(kind))
	r, err = scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Counts returns the number of stored records per kind.
func (s *Store) Counts(ctx context.Context) (map[worker.EventKind]int, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[worker.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[worker.EventKind(kind)] = n
	}
	return counts, rows.Err()
}

// Prune deletes records older than before and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM events WHERE time < ?`, before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r        Record
		kind     string
		ts       string
		duration int64
	)
	if err := sc.Scan(&r.ID, &kind, &ts, &duration, &r.Items, &r.Hash, &r.Detail, &r.Error); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("failed to scan event: %w", err)
	}
	t, err := time.Parse(timeFormat, ts)
	if err != nil {
		return Record{}, fmt.Errorf("failed to parse event time %q: %w", ts, err)
	}
	r.Kind = worker.EventKind(kind)
	r.Time = t
	r.Duration = time.Duration(duration)
	return r, nil
}
