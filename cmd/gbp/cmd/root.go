// Package cmd implements the gbp command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gbp",
	Short: "Gentoo Build Publisher",
	Long: `Gentoo Build Publisher pulls CI-built Gentoo images into a
content-addressed build store, deduplicating identical files across
builds, and publishes one build per machine behind an atomically
swapped pointer.

Configuration comes from BUILD_PUBLISHER_* environment variables, e.g.
BUILD_PUBLISHER_STORAGE_PATH and BUILD_PUBLISHER_WORKER_BACKEND.
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
