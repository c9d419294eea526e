// Command gitfs keeps a git working tree continuously committed, merged
// and pushed.
package main

import (
	"os"

	_ "github.com/mschirtzinger/gitfs/internal/vcs/git"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
