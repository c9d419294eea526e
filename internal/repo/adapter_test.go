package repo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/vcs/git"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// fakeVCS records calls and returns canned answers.
type fakeVCS struct {
	vcs.VCS // unimplemented methods panic

	calls      []string
	added      []string
	staged     bool
	commitOpts vcs.CommitOptions
	mergeOpts  vcs.MergeOptions
	pushOpts   vcs.PushOptions
	divergence vcs.DivergenceInfo
	hasRemote  bool
	fetchErr   error
	mergeErr   error
	pushErr    error
}

func (f *fakeVCS) Add(paths []string) error {
	f.calls = append(f.calls, "add")
	f.added = append(f.added, paths...)
	return nil
}

func (f *fakeVCS) HasStagedChanges(ctx context.Context) (bool, error) { return f.staged, nil }

func (f *fakeVCS) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	f.calls = append(f.calls, "commit")
	f.commitOpts = opts
	return nil
}

func (f *fakeVCS) GetCommitHash(ref string) (string, error) { return "0123456789abcdef", nil }
func (f *fakeVCS) HasRemote() bool                          { return f.hasRemote }
func (f *fakeVCS) CurrentRef() (string, error)              { return "main", nil }
func (f *fakeVCS) UpstreamRef() (string, string, error)     { return "origin", "trunk", nil }

func (f *fakeVCS) Fetch(ctx context.Context, remote, ref string) error {
	f.calls = append(f.calls, "fetch:"+remote+"/"+ref)
	return f.fetchErr
}

func (f *fakeVCS) HasDivergence(local, remote string) (vcs.DivergenceInfo, error) {
	return f.divergence, nil
}

func (f *fakeVCS) Merge(ctx context.Context, opts vcs.MergeOptions) error {
	f.calls = append(f.calls, "merge")
	f.mergeOpts = opts
	return f.mergeErr
}

func (f *fakeVCS) Push(ctx context.Context, opts vcs.PushOptions) error {
	f.calls = append(f.calls, "push")
	f.pushOpts = opts
	return f.pushErr
}

func newAdapter(t *testing.T, f *fakeVCS, config Config) *Adapter {
	t.Helper()
	config.VCS = f
	a, err := New(config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return a
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: StrategyDefault},
		{in: "default", want: StrategyDefault},
		{in: "Ours", want: StrategyOurs},
		{in: " theirs ", want: StrategyTheirs},
		{in: "octopus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownStrategy) {
					t.Errorf("ParseStrategy(%q) error = %v, want ErrUnknownStrategy", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseStrategy(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestNewRequiresVCS(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without VCS should fail")
	}
}

func TestCommitStagesDistinctPathsInOrder(t *testing.T) {
	f := &fakeVCS{staged: true}
	a := newAdapter(t, f, Config{})

	items := []worker.Item{
		worker.NewCommitItem("b.txt", "write"),
		worker.NewCommitItem("a.txt", "write"),
		worker.NewCommitItem("b.txt", "remove"),
	}
	id := worker.Identity{AuthorName: "Alice", AuthorEmail: "alice@example.com", CommitterName: "Bot", CommitterEmail: "bot@example.com"}

	res, err := a.Commit(context.Background(), items, worker.CommitOptions{Identity: id})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if strings.Join(f.added, ",") != "b.txt,a.txt" {
		t.Errorf("added = %v, want [b.txt a.txt]", f.added)
	}
	if res.Files != 2 || res.Empty || res.Hash != "0123456789abcdef" {
		t.Errorf("Commit() = %+v", res)
	}
	if f.commitOpts.Author != "Alice <alice@example.com>" {
		t.Errorf("Author = %q", f.commitOpts.Author)
	}
	if f.commitOpts.CommitterName != "Bot" || f.commitOpts.CommitterEmail != "bot@example.com" {
		t.Errorf("committer = %q <%q>", f.commitOpts.CommitterName, f.commitOpts.CommitterEmail)
	}
	if !strings.HasPrefix(f.commitOpts.Message, "gitfs: update 2 files") {
		t.Errorf("Message = %q", f.commitOpts.Message)
	}
}

func TestCommitNothingStaged(t *testing.T) {
	f := &fakeVCS{staged: false}
	a := newAdapter(t, f, Config{})

	res, err := a.Commit(context.Background(), []worker.Item{worker.NewCommitItem("a", "write")}, worker.CommitOptions{})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if !res.Empty {
		t.Error("expected Empty result")
	}
	for _, c := range f.calls {
		if c == "commit" {
			t.Error("commit called with nothing staged")
		}
	}
}

func TestCommitMessage(t *testing.T) {
	single := CommitMessage("gitfs:", []worker.Item{
		worker.NewCommitItem("notes/todo.md", "write"),
		{Kind: worker.KindCommit, Path: "notes/todo.md", Op: "write", Message: "from editor"},
	})
	want := "gitfs: update notes/todo.md\n\nwrite notes/todo.md\nwrite notes/todo.md: from editor"
	if single != want {
		t.Errorf("CommitMessage() = %q, want %q", single, want)
	}
}

func TestMergeUpToDate(t *testing.T) {
	f := &fakeVCS{hasRemote: true}
	a := newAdapter(t, f, Config{})

	res, err := a.Merge(context.Background(), "theirs")
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if !res.UpToDate {
		t.Error("expected UpToDate")
	}
	if strings.Join(f.calls, ",") != "fetch:origin/trunk" {
		t.Errorf("calls = %v, want only the fetch", f.calls)
	}
}

func TestMergeWithStrategy(t *testing.T) {
	f := &fakeVCS{hasRemote: true, divergence: vcs.DivergenceInfo{LocalAhead: 1, RemoteAhead: 2, IsDiverged: true}}
	a := newAdapter(t, f, Config{
		Remote:   "upstream",
		Identity: worker.Identity{AuthorName: "Alice", AuthorEmail: "alice@example.com"},
	})

	res, err := a.Merge(context.Background(), "ours")
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if res.UpToDate || res.FastForward {
		t.Errorf("Merge() = %+v, want a true merge", res)
	}
	if f.mergeOpts.Ref != "upstream/trunk" || f.mergeOpts.StrategyOption != "ours" {
		t.Errorf("merge options = %+v", f.mergeOpts)
	}
	if f.mergeOpts.CommitterName != "Alice" {
		t.Errorf("merge committer = %q, want author fallback", f.mergeOpts.CommitterName)
	}
}

func TestMergeErrors(t *testing.T) {
	tests := []struct {
		name     string
		f        *fakeVCS
		strategy string
		check    func(error) bool
	}{
		{
			name:     "unknown strategy",
			f:        &fakeVCS{},
			strategy: "recursive-patience",
			check:    func(err error) bool { return errors.Is(err, ErrUnknownStrategy) },
		},
		{
			name:  "conflict",
			f:     &fakeVCS{divergence: vcs.DivergenceInfo{RemoteAhead: 1}, mergeErr: vcs.ErrConflicts},
			check: vcs.IsUserActionRequired,
		},
		{
			name:  "fetch failure",
			f:     &fakeVCS{fetchErr: vcs.ErrTimeout},
			check: vcs.IsRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, tt.f, Config{})
			_, err := a.Merge(context.Background(), tt.strategy)
			if err == nil || !tt.check(err) {
				t.Errorf("Merge() error = %v", err)
			}
		})
	}
}

func TestMergeWithoutRemote(t *testing.T) {
	f := &fakeVCS{fetchErr: vcs.ErrNoRemote}
	a := newAdapter(t, f, Config{})

	res, err := a.Merge(context.Background(), "")
	if err != nil || !res.UpToDate {
		t.Errorf("Merge() = %+v, %v; want UpToDate", res, err)
	}
}

func TestPush(t *testing.T) {
	f := &fakeVCS{hasRemote: true}
	a := newAdapter(t, f, Config{})

	res, err := a.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	if res.Remote != "origin" || res.Ref != "trunk" || res.Skipped {
		t.Errorf("Push() = %+v", res)
	}
	if f.pushOpts.Ref != "main:trunk" {
		t.Errorf("push refspec = %q, want main:trunk", f.pushOpts.Ref)
	}

	f.pushErr = vcs.ErrPushRejected
	if _, err := a.Push(context.Background()); !errors.Is(err, vcs.ErrPushRejected) {
		t.Errorf("Push() error = %v, want ErrPushRejected", err)
	}
}

func TestPushSkippedWithoutRemote(t *testing.T) {
	a := newAdapter(t, &fakeVCS{}, Config{})

	res, err := a.Push(context.Background())
	if err != nil || !res.Skipped {
		t.Errorf("Push() = %+v, %v; want Skipped", res, err)
	}
}

// gitCmd runs git in dir and fails the test on error.
func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func TestAdapterAgainstGit(t *testing.T) {
	if !vcs.IsGitAvailable() {
		t.Skip("git not available")
	}

	bare := filepath.Join(t.TempDir(), "origin.git")
	local := t.TempDir()
	gitCmd(t, local, "init", "-q")
	gitCmd(t, local, "symbolic-ref", "HEAD", "refs/heads/main")
	gitCmd(t, local, "config", "user.name", "Test User")
	gitCmd(t, local, "config", "user.email", "test@example.com")
	gitCmd(t, local, "config", "commit.gpgsign", "false")
	gitCmd(t, local, "init", "-q", "--bare", bare)
	gitCmd(t, local, "remote", "add", "origin", bare)
	if err := os.WriteFile(filepath.Join(local, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, local, "add", "a.txt")
	gitCmd(t, local, "commit", "-q", "-m", "initial")
	gitCmd(t, local, "push", "-q", "-u", "origin", "main")

	g, err := git.New(local)
	if err != nil {
		t.Fatalf("git.New() failed: %v", err)
	}
	a, err := New(Config{VCS: g})
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(local, "b.txt"), []byte("two\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(local, "a.txt")); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	items := []worker.Item{worker.NewCommitItem("b.txt", "write"), worker.NewCommitItem("a.txt", "remove")}
	id := worker.Identity{AuthorName: "Alice", AuthorEmail: "alice@example.com"}

	res, err := a.Commit(ctx, items, worker.CommitOptions{Identity: id})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if res.Empty || res.Files != 2 {
		t.Errorf("Commit() = %+v", res)
	}
	if statuses, _ := g.Status(); len(statuses) != 0 {
		t.Errorf("working tree still dirty after commit: %+v", statuses)
	}

	again, err := a.Commit(ctx, items, worker.CommitOptions{Identity: id})
	if err != nil || !again.Empty {
		t.Errorf("second Commit() = %+v, %v; want Empty", again, err)
	}

	if m, err := a.Merge(ctx, "theirs"); err != nil || !m.UpToDate {
		t.Errorf("Merge() = %+v, %v; want UpToDate", m, err)
	}

	p, err := a.Push(ctx)
	if err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	if p.Remote != "origin" || p.Ref != "main" {
		t.Errorf("Push() = %+v", p)
	}

	remoteHead, err := g.GetCommitHash("origin/main")
	if err != nil {
		t.Fatal(err)
	}
	if remoteHead != res.Hash {
		t.Errorf("origin/main = %s, want %s", remoteHead, res.Hash)
	}
}
