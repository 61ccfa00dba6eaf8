package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enku/gentoo-build-publisher/pkg/model"
)

var diffCmd = &cobra.Command{
	Use:   "diff LEFT RIGHT",
	Short: "Show package changes between two builds",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		left, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		right, err := model.ParseBuild(args[1])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			changes, err := a.publisher.Diff(left, right)
			if err != nil {
				return err
			}
			for _, change := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", change.Status, change.Item)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
