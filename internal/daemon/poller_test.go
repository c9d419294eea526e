package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// remoteVCS fakes the two remote queries the poller makes.
type remoteVCS struct {
	vcs.VCS

	head      string
	headErr   error
	contained map[string]bool
	asked     []string
}

func (r *remoteVCS) UpstreamRef() (string, string, error) { return "origin", "main", nil }

func (r *remoteVCS) RemoteHead(ctx context.Context, remote, branch string) (string, error) {
	r.asked = append(r.asked, remote+"/"+branch)
	return r.head, r.headErr
}

func (r *remoteVCS) IsAncestor(commit, ref string) (bool, error) {
	return r.contained[commit], nil
}

func newTestPoller(t *testing.T, v vcs.VCS, config PollerConfig) (*RemotePoller, *worker.Queue) {
	t.Helper()
	q := worker.NewQueue()
	config.VCS = v
	config.Queue = q
	p, err := NewRemotePoller(config)
	if err != nil {
		t.Fatalf("NewRemotePoller() failed: %v", err)
	}
	return p, q
}

func TestNewRemotePoller_Validates(t *testing.T) {
	if _, err := NewRemotePoller(PollerConfig{}); err == nil {
		t.Error("expected error without VCS and Queue")
	}
}

func TestPoll(t *testing.T) {
	tests := []struct {
		name      string
		head      string
		headErr   error
		contained bool
		wantQueue bool
		wantErr   bool
	}{
		{name: "remote ahead", head: "aaaaaaaaaaaa", wantQueue: true},
		{name: "already merged", head: "aaaaaaaaaaaa", contained: true},
		{name: "empty remote", head: ""},
		{name: "no remote", headErr: vcs.ErrNoRemote, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &remoteVCS{head: tt.head, headErr: tt.headErr, contained: map[string]bool{tt.head: tt.contained}}
			p, q := newTestPoller(t, v, PollerConfig{})

			queued, err := p.Poll(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Poll() error = %v, wantErr %v", err, tt.wantErr)
			}
			if queued != tt.wantQueue {
				t.Errorf("Poll() queued = %v, want %v", queued, tt.wantQueue)
			}
			if tt.wantQueue {
				it, err := q.Take(context.Background(), time.Second)
				if err != nil {
					t.Fatalf("Take() failed: %v", err)
				}
				if it.Kind != worker.KindMerge {
					t.Errorf("queued kind = %v, want merge", it.Kind)
				}
			} else if q.Len() != 0 {
				t.Errorf("queue length = %d, want 0", q.Len())
			}
		})
	}
}

func TestPoll_AnnouncesEachHeadOnce(t *testing.T) {
	v := &remoteVCS{head: "aaaaaaaa", contained: map[string]bool{}}
	p, q := newTestPoller(t, v, PollerConfig{})

	for i := 0; i < 3; i++ {
		if _, err := p.Poll(context.Background()); err != nil {
			t.Fatalf("Poll() failed: %v", err)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1 for an unchanged head", q.Len())
	}

	v.head = "bbbbbbbb"
	queued, err := p.Poll(context.Background())
	if err != nil || !queued {
		t.Fatalf("Poll() = %v, %v; want a new announcement", queued, err)
	}
	if q.Len() != 2 {
		t.Errorf("queue length = %d, want 2", q.Len())
	}
}

func TestPoll_ConfiguredUpstream(t *testing.T) {
	v := &remoteVCS{head: "cccccccc", contained: map[string]bool{}}
	p, _ := newTestPoller(t, v, PollerConfig{Remote: "backup", Branch: "sync"})

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if len(v.asked) != 1 || v.asked[0] != "backup/sync" {
		t.Errorf("asked = %v, want [backup/sync]", v.asked)
	}
}

func TestRemotePoller_RunStopsOnCancel(t *testing.T) {
	v := &remoteVCS{headErr: errors.New("unreachable")}
	p, _ := newTestPoller(t, v, PollerConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
