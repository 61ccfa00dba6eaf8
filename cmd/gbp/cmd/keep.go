package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/enku/gentoo-build-publisher/pkg/model"
)

var keepRelease bool

var keepCmd = &cobra.Command{
	Use:   "keep MACHINE.NUMBER",
	Short: "Exempt a build from pruning",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.publisher.SetKeep(build, !keepRelease)
		})
	},
}

var noteCmd = &cobra.Command{
	Use:   "note MACHINE.NUMBER [TEXT...]",
	Short: "Annotate a build (no text clears the note)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.publisher.SetNote(build, strings.Join(args[1:], " "))
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete MACHINE.NUMBER",
	Short: "Remove a build from the store",
	Long: `Delete removes a build, its tags and its record. Published builds and
builds marked keep are refused. Storage nodes no longer referenced by
any build are reclaimed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.publisher.Delete(cmd.Context(), build)
		})
	},
}

func init() {
	keepCmd.Flags().BoolVar(&keepRelease, "release", false, "clear the keep flag instead")
	rootCmd.AddCommand(keepCmd)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(deleteCmd)
}
