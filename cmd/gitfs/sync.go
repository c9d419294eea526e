package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/gitfs/internal/config"
	"github.com/mschirtzinger/gitfs/internal/daemon"
	"github.com/mschirtzinger/gitfs/internal/logging"
	"github.com/mschirtzinger/gitfs/internal/ui"
	"github.com/mschirtzinger/gitfs/internal/vcs"
	"github.com/mschirtzinger/gitfs/internal/worker"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run the sync daemon in the foreground",
	Long: `Run the sync daemon for the repository until interrupted.

The daemon:
  1. Watches the working tree and commits changes once the queue is quiet
  2. Polls the remote and merges what other clones pushed
  3. Pushes after every successful merge
  4. Records every step in .git/gitfs-sync.db

Merge conflicts that the configured strategy cannot resolve stop the
daemon with a non-zero exit; the merge is aborted and the tree left clean.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		out, closeLog := logging.Output(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		defer closeLog()

		d, err := daemon.New(repoDir, daemonConfig(cfg, out))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Syncing %s\n", ui.RenderAccent("→"), d.Root())
		fmt.Printf("   Strategy: %s\n", cfg.Sync.Strategy)
		if cfg.Dashboard.Enabled {
			fmt.Printf("   Dashboard: http://%s\n", cfg.Dashboard.Addr)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := d.Start(ctx); err != nil {
			switch {
			case errors.Is(err, daemon.ErrAlreadyRunning):
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn(ui.IconWarn), err)
			case vcs.IsUserActionRequired(err):
				fmt.Fprintf(os.Stderr, "%s Sync stopped: %v\n", ui.RenderFail(ui.IconFail), err)
				fmt.Fprintf(os.Stderr, "   Resolve the divergence by hand, then run 'gitfs sync' again\n")
			default:
				fmt.Fprintf(os.Stderr, "%s Daemon stopped with error: %v\n", ui.RenderFail(ui.IconFail), err)
			}
			closeLog()
			os.Exit(1)
		}
		fmt.Printf("%s Stopped\n", ui.RenderPass(ui.IconPass))
	},
}

// daemonConfig translates the file/env/flag settings into a daemon config
// logging to out.
func daemonConfig(cfg *config.Config, out io.Writer) *daemon.Config {
	dc := daemon.DefaultConfig()
	dc.Identity = worker.Identity{AuthorName: cfg.Identity.Name, AuthorEmail: cfg.Identity.Email}
	dc.Strategy = cfg.Sync.Strategy
	dc.Remote = cfg.Sync.Remote
	dc.Branch = cfg.Sync.Branch
	dc.MessagePrefix = cfg.Sync.MessagePrefix
	dc.NoVerify = cfg.Sync.NoVerify
	dc.Timeout = cfg.Sync.Timeout
	dc.DebounceInterval = cfg.Sync.Debounce
	dc.PollInterval = cfg.Sync.PollInterval
	if dc.PollInterval == 0 {
		dc.PollInterval = -1
	}
	dc.DisableCommits = cfg.Sync.DisableCommits
	dc.DisableMerges = cfg.Sync.DisableMerges
	dc.RestartDelay = cfg.Supervisor.RestartDelay
	dc.MaxRestartDelay = cfg.Supervisor.MaxRestartDelay
	dc.MaxRestarts = cfg.Supervisor.MaxRestarts
	dc.DisableHistory = !cfg.History.Enabled
	dc.HistoryRetention = cfg.History.Retention
	if cfg.Dashboard.Enabled {
		dc.DashboardAddr = cfg.Dashboard.Addr
	}
	dc.Verbose = cfg.Log.Verbose
	dc.Logger = logging.New(out, "daemon")
	return dc
}

func init() {
	syncCmd.Flags().String("strategy", "", "conflict strategy: default, ours or theirs")
	syncCmd.Flags().String("remote", "", "remote to sync with (default: upstream of the current branch)")
	syncCmd.Flags().String("branch", "", "remote branch to sync with (default: upstream of the current branch)")
	syncCmd.Flags().Duration("timeout", 0, "quiet period before committing, merging and pushing")
	syncCmd.Flags().Duration("poll-interval", 0, "how often to check the remote (0 disables polling)")
	syncCmd.Flags().Bool("no-merge", false, "commit locally only; never merge or push")
	syncCmd.Flags().Bool("no-history", false, "do not record sync events in .git/gitfs-sync.db")
	syncCmd.Flags().Bool("dashboard", false, "serve the live dashboard")
	syncCmd.Flags().String("dashboard-addr", "", "dashboard listen address")
	rootCmd.AddCommand(syncCmd)
}
