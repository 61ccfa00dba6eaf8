package cmd

import (
	"github.com/spf13/cobra"

	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/publisher"
)

var publishCmd = &cobra.Command{
	Use:   "publish MACHINE.NUMBER",
	Short: "Make a build the machine's published build",
	Long: `Publish atomically points the machine at the given pulled build.
Readers of the machine's published tree switch from the previous build
to this one in a single step.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			handle, err := a.worker.Enqueue(cmd.Context(), publisher.PublishTask(build))
			if err != nil {
				return err
			}
			return handle.Wait(cmd.Context())
		})
	},
}

var unpublishCmd = &cobra.Command{
	Use:   "unpublish MACHINE",
	Short: "Withdraw a machine's published build",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return a.publisher.Release(args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(unpublishCmd)
}
