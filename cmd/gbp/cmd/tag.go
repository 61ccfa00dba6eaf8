package cmd

import (
	"github.com/spf13/cobra"

	"github.com/enku/gentoo-build-publisher/pkg/model"
)

var tagCmd = &cobra.Command{
	Use:   "tag MACHINE.NUMBER NAME",
	Short: "Point MACHINE@NAME at a build",
	Long: `Tag creates (or moves) the named tag for the build's machine. A
tagged build is exempt from retention pruning until untagged.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			return a.publisher.Tag(build, args[1])
		})
	},
}

var untagCmd = &cobra.Command{
	Use:   "untag MACHINE NAME",
	Short: "Drop MACHINE@NAME",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return a.publisher.Untag(args[0], args[1])
		})
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(untagCmd)
}
