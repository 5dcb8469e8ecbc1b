package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ragbot %s\n", Version)
		fmt.Printf("  build time: %s\n", BuildTime)
		fmt.Printf("  commit:     %s\n", GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
