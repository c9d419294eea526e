package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mschirtzinger/gitfs/internal/worker"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []Record{
		{ID: "a", Kind: worker.EventCommit, Time: base, Duration: 15 * time.Millisecond, Items: 3, Hash: "abc"},
		{ID: "b", Kind: worker.EventMerge, Time: base.Add(500 * time.Millisecond), Detail: "up to date"},
		{ID: "c", Kind: worker.EventPush, Time: base.Add(time.Second), Detail: "origin/main"},
	}
	for _, r := range records {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record(%s) failed: %v", r.ID, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("Recent(2) = %+v, want c then b", got)
	}

	all, _ := s.Recent(ctx, 10)
	first := all[len(all)-1]
	if first.Items != 3 || first.Hash != "abc" || first.Duration != 15*time.Millisecond || !first.Time.Equal(base) {
		t.Errorf("round trip = %+v", first)
	}
}

func TestRecordDuplicateIDKeepsFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, Record{ID: "x", Kind: worker.EventCommit, Time: time.Now(), Hash: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, Record{ID: "x", Kind: worker.EventCommit, Time: time.Now(), Hash: "second"}); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Recent(ctx, 10)
	if len(got) != 1 || got[0].Hash != "first" {
		t.Errorf("Recent() = %+v", got)
	}

	if err := s.Record(ctx, Record{Kind: worker.EventCommit}); err == nil {
		t.Error("Record() without id should fail")
	}
}

func TestObserveAndLastOf(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.Observe(worker.Event{ID: "1", Kind: worker.EventPush, Time: now.Add(-time.Minute), Detail: "origin/main"})
	s.Observe(worker.Event{ID: "2", Kind: worker.EventFailure, Time: now, Detail: "push", Err: errors.New("push rejected")})
	s.Observe(worker.Event{ID: "3", Kind: worker.EventPush, Time: now, Detail: "origin/main"})

	last, ok, err := s.LastOf(ctx, worker.EventPush)
	if err != nil || !ok {
		t.Fatalf("LastOf(push) = %v, %v", ok, err)
	}
	if last.ID != "3" {
		t.Errorf("LastOf(push).ID = %s, want 3", last.ID)
	}

	fail, ok, _ := s.LastOf(ctx, worker.EventFailure)
	if !ok || fail.Error != "push rejected" {
		t.Errorf("LastOf(failure) = %+v", fail)
	}

	if _, ok, err := s.LastOf(ctx, worker.EventMerge); ok || err != nil {
		t.Errorf("LastOf(merge) = %v, %v; want none", ok, err)
	}
}

func TestCountsAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	for i, r := range []Record{
		{ID: "1", Kind: worker.EventCommit, Time: old},
		{ID: "2", Kind: worker.EventCommit, Time: time.Now()},
		{ID: "3", Kind: worker.EventPush, Time: time.Now()},
	} {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record(%d) failed: %v", i, err)
		}
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts[worker.EventCommit] != 2 || counts[worker.EventPush] != 1 {
		t.Errorf("Counts() = %v", counts)
	}

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Errorf("Prune() = %d, %v; want 1", n, err)
	}
	counts, _ = s.Counts(ctx)
	if counts[worker.EventCommit] != 1 {
		t.Errorf("after prune commits = %d, want 1", counts[worker.EventCommit])
	}
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer s.Close()

	if err := s.Record(context.Background(), Record{ID: "m", Kind: worker.EventMerge, Time: time.Now()}); err != nil {
		t.Fatal(err)
	}
	counts, err := s.Counts(context.Background())
	if err != nil || counts[worker.EventMerge] != 1 {
		t.Errorf("Counts() = %v, %v", counts, err)
	}
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(context.Background(), Record{ID: "p", Kind: worker.EventCommit, Time: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok, _ := s.LastOf(context.Background(), worker.EventCommit); !ok {
		t.Error("record lost across reopen")
	}
}
