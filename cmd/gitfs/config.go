package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/gitfs/internal/config"
	"github.com/mschirtzinger/gitfs/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage gitfs configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a gitfs.toml with the default settings",
	Long: `Write the default configuration to gitfs.toml in the repository root,
or to the user config directory with --global.

Every key can also be set through the environment, e.g.
GITFS_SYNC_STRATEGY=theirs or GITFS_DASHBOARD_ENABLED=true.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		global, _ := cmd.Flags().GetBool("global")

		path := cfgFile
		if path == "" {
			dir := configDir()
			if global {
				userDir, err := os.UserConfigDir()
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					os.Exit(1)
				}
				dir = filepath.Join(userDir, "gitfs")
			}
			path = filepath.Join(dir, config.FileName)
		}

		if err := config.WriteDefault(path, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass(ui.IconPass), path)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configInitCmd.Flags().Bool("global", false, "write to the user config directory")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
