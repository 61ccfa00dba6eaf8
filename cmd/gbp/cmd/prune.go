package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enku/gentoo-build-publisher/pkg/publisher"
)

var pruneCmd = &cobra.Command{
	Use:   "prune MACHINE",
	Short: "Apply retention to a machine's builds",
	Long: `Prune removes the machine's builds that fall outside the configured
retention thresholds (BUILD_PUBLISHER_RETAIN_COUNT and
BUILD_PUBLISHER_RETAIN_DAYS). Published, kept and tagged builds are
never pruned. With both thresholds unset this is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			handle, err := a.worker.Enqueue(cmd.Context(), publisher.PruneTask(args[0]))
			if err != nil {
				return err
			}
			if err := handle.Wait(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pruned", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
