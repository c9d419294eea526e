package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mschirtzinger/gitfs/internal/config"
	"github.com/mschirtzinger/gitfs/internal/vcs"
)

var (
	cfgFile string
	repoDir string
	logFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gitfs",
	Short: "Continuously sync a git working tree",
	Long: `gitfs watches a git working tree, commits changes as they settle,
merges what other clones pushed and pushes the result.

Configuration is read from gitfs.toml in the repository root (or the user
config directory), GITFS_* environment variables and flags, in increasing
order of precedence.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: gitfs.toml in the repository root)")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "repository to operate on")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to a rotated file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every queued item and idle tick")
}

// flagKeys maps command-line flags to config keys. Flags only override the
// config when set explicitly.
var flagKeys = map[string]string{
	"log-file":       "log.file",
	"verbose":        "log.verbose",
	"strategy":       "sync.strategy",
	"remote":         "sync.remote",
	"branch":         "sync.branch",
	"timeout":        "sync.timeout",
	"poll-interval":  "sync.poll_interval",
	"no-merge":       "sync.disable_merges",
	"dashboard":      "dashboard.enabled",
	"dashboard-addr": "dashboard.addr",
	"no-history":     "history.enabled",
}

// loadConfig merges the config file, environment and the flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.NewViper(cfgFile, configDir())
	if err != nil {
		return nil, err
	}

	var bindErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if f.Name == "no-history" {
			v.Set(key, f.Value.String() != "true")
			return
		}
		bindErr = v.BindPFlag(key, f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("binding flags: %w", bindErr)
	}

	return config.FromViper(v)
}

// configDir is where gitfs.toml is looked up: the repository root when
// repoDir is inside one, repoDir otherwise.
func configDir() string {
	if res, err := vcs.Detect(repoDir); err == nil {
		return res.RepoRoot
	}
	return repoDir
}
