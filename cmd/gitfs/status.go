package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/gitfs/internal/daemon"
	"github.com/mschirtzinger/gitfs/internal/history"
	"github.com/mschirtzinger/gitfs/internal/ui"
	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

// StatusReport is what gitfs status prints.
type StatusReport struct {
	Root       string          `json:"root" yaml:"root"`
	Branch     string          `json:"branch" yaml:"branch"`
	Upstream   string          `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Remotes    []RemoteStatus  `json:"remotes,omitempty" yaml:"remotes,omitempty"`
	Ahead      int             `json:"ahead" yaml:"ahead"`
	Behind     int             `json:"behind" yaml:"behind"`
	Changes    int             `json:"changes" yaml:"changes"`
	Conflicts  []string        `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Merging    bool            `json:"merging" yaml:"merging"`
	Running    bool            `json:"daemon_running" yaml:"daemon_running"`
	History    *HistorySummary `json:"history,omitempty" yaml:"history,omitempty"`
	Diagnostic []string        `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

type RemoteStatus struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// HistorySummary condenses the sync ledger.
type HistorySummary struct {
	Counts     map[worker.EventKind]int `json:"counts" yaml:"counts"`
	LastCommit *history.Record          `json:"last_commit,omitempty" yaml:"last_commit,omitempty"`
	LastMerge  *history.Record          `json:"last_merge,omitempty" yaml:"last_merge,omitempty"`
	LastPush   *history.Record          `json:"last_push,omitempty" yaml:"last_push,omitempty"`
	LastError  *history.Record          `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync state of the repository",
	Long: `Show the branch, its divergence from the upstream, uncommitted changes,
whether a sync daemon is running, and a summary of the sync history.

Divergence is computed against the last fetched remote ref; pass --fetch
to update it first.`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		asYAML, _ := cmd.Flags().GetBool("yaml")
		fetch, _ := cmd.Flags().GetBool("fetch")

		v, err := vcs.Open(repoDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		report, err := collectStatus(ctx, v, fetch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		switch {
		case asJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
		case asYAML:
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				fmt.Fprintf(os.Stderr, "Error encoding YAML: %v\n", err)
				os.Exit(1)
			}
			_ = enc.Close()
		default:
			printStatus(report)
		}
	},
}

// collectStatus gathers the report. Problems with optional parts, such as
// a missing upstream, become diagnostics instead of errors.
func collectStatus(ctx context.Context, v vcs.VCS, fetch bool) (*StatusReport, error) {
	root, err := v.RepoRoot()
	if err != nil {
		return nil, err
	}
	gitDir, err := v.VCSDir()
	if err != nil {
		return nil, err
	}
	branch, err := v.CurrentRef()
	if err != nil {
		return nil, err
	}

	r := &StatusReport{Root: root, Branch: branch, Merging: v.IsInRebaseOrMerge()}
	if branch == "" {
		r.Branch = "(detached)"
	}

	status, err := v.Status()
	if err != nil {
		return nil, err
	}
	r.Changes = len(status)

	if r.Conflicts, err = v.GetConflictedFiles(); err != nil {
		r.Diagnostic = append(r.Diagnostic, fmt.Sprintf("conflicts: %v", err))
	}

	remotes, err := v.GetRemotes()
	if err != nil {
		r.Diagnostic = append(r.Diagnostic, fmt.Sprintf("remotes: %v", err))
	}
	for _, rem := range remotes {
		r.Remotes = append(r.Remotes, RemoteStatus{Name: rem.Name, URL: rem.URL})
	}

	remote, ref, err := v.UpstreamRef()
	switch {
	case err != nil:
		r.Diagnostic = append(r.Diagnostic, fmt.Sprintf("upstream: %v", err))
	case !v.HasRemote():
		r.Diagnostic = append(r.Diagnostic, "upstream: no remote configured")
	default:
		r.Upstream = remote + "/" + ref
		if fetch {
			if err := v.Fetch(ctx, remote, ref); err != nil {
				r.Diagnostic = append(r.Diagnostic, fmt.Sprintf("fetch: %v", err))
			}
		}
		if div, err := v.HasDivergence("HEAD", r.Upstream); err != nil {
			r.Diagnostic = append(r.Diagnostic, fmt.Sprintf("divergence: %v", err))
		} else {
			r.Ahead, r.Behind = div.LocalAhead, div.RemoteAhead
		}
	}

	if r.Running, err = daemon.IsRunning(gitDir); err != nil {
		r.Diagnostic = append(r.Diagnostic, err.Error())
	}

	dbPath := filepath.Join(gitDir, history.FileName)
	if _, err := os.Stat(dbPath); err == nil {
		summary, err := summarizeHistory(ctx, dbPath)
		if err != nil {
			r.Diagnostic = append(r.Diagnostic, fmt.Sprintf("history: %v", err))
		}
		r.History = summary
	}

	return r, nil
}

func summarizeHistory(ctx context.Context, path string) (*HistorySummary, error) {
	store, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	counts, err := store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	s := &HistorySummary{Counts: counts}

	last := func(kind worker.EventKind) (*history.Record, error) {
		rec, ok, err := store.LastOf(ctx, kind)
		if err != nil || !ok {
			return nil, err
		}
		return &rec, nil
	}
	var errs []error
	var e error
	s.LastCommit, e = last(worker.EventCommit)
	errs = append(errs, e)
	s.LastMerge, e = last(worker.EventMerge)
	errs = append(errs, e)
	s.LastPush, e = last(worker.EventPush)
	errs = append(errs, e)
	s.LastError, e = last(worker.EventFailure)
	errs = append(errs, e)
	return s, errors.Join(errs...)
}

func printStatus(r *StatusReport) {
	fmt.Printf("\n%s\n\n", ui.RenderCategory("gitfs status"))
	fmt.Println(ui.RenderField("Repository", r.Root))
	fmt.Println(ui.RenderField("Branch", r.Branch))

	if r.Upstream != "" {
		sync := ui.RenderPass("in sync")
		switch {
		case r.Ahead > 0 && r.Behind > 0:
			sync = ui.RenderWarn(fmt.Sprintf("diverged (%d ahead, %d behind)", r.Ahead, r.Behind))
		case r.Ahead > 0:
			sync = ui.RenderAccent(fmt.Sprintf("%d ahead", r.Ahead))
		case r.Behind > 0:
			sync = ui.RenderAccent(fmt.Sprintf("%d behind", r.Behind))
		}
		if r.Ahead+r.Behind > vcs.SignificantDivergenceThreshold {
			sync += " " + ui.RenderWarn(ui.IconWarn)
		}
		fmt.Println(ui.RenderField("Upstream", r.Upstream+"  "+sync))
	}
	for _, rem := range r.Remotes {
		fmt.Println(ui.RenderField("Remote", rem.Name+"  "+ui.RenderMuted(rem.URL)))
	}

	changes := ui.RenderPass("clean")
	if r.Changes > 0 {
		changes = ui.RenderAccent(fmt.Sprintf("%d uncommitted", r.Changes))
	}
	fmt.Println(ui.RenderField("Changes", changes))

	if r.Merging {
		fmt.Println(ui.RenderField("Merge", ui.RenderFail("in progress")))
	}
	for _, f := range r.Conflicts {
		fmt.Println(ui.RenderField("Conflict", ui.RenderFail(f)))
	}

	daemonState := ui.RenderMuted("not running")
	if r.Running {
		daemonState = ui.RenderPass("running")
	}
	fmt.Println(ui.RenderField("Daemon", daemonState))

	if h := r.History; h != nil {
		fmt.Printf("\n%s\n\n", ui.RenderCategory("history"))
		fmt.Println(ui.RenderField("Commits", fmt.Sprint(h.Counts[worker.EventCommit])))
		fmt.Println(ui.RenderField("Merges", fmt.Sprint(h.Counts[worker.EventMerge])))
		fmt.Println(ui.RenderField("Pushes", fmt.Sprint(h.Counts[worker.EventPush])))
		fmt.Println(ui.RenderField("Failures", fmt.Sprint(h.Counts[worker.EventFailure])))
		printLast("Last commit", h.LastCommit)
		printLast("Last push", h.LastPush)
		if h.LastError != nil {
			fmt.Println(ui.RenderField("Last error", ui.RenderFail(h.LastError.Error)+" "+
				ui.RenderMuted(h.LastError.Time.Local().Format("2006-01-02 15:04:05"))))
		}
	}

	for _, d := range r.Diagnostic {
		fmt.Printf("%s %s\n", ui.RenderWarn(ui.IconWarn), ui.RenderMuted(d))
	}
	fmt.Println()
}

func printLast(label string, rec *history.Record) {
	if rec == nil {
		return
	}
	value := rec.Time.Local().Format("2006-01-02 15:04:05")
	if rec.Hash != "" {
		value += " " + ui.RenderMuted(shortHash(rec.Hash))
	}
	fmt.Println(ui.RenderField(label, value))
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func init() {
	statusCmd.Flags().Bool("json", false, "output as JSON")
	statusCmd.Flags().Bool("yaml", false, "output as YAML")
	statusCmd.Flags().Bool("fetch", false, "fetch the upstream before computing divergence")
	statusCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	rootCmd.AddCommand(statusCmd)
}
