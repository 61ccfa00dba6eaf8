package cmd

import (
	"github.com/spf13/cobra"

	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/publisher"
)

var pullCmd = &cobra.Command{
	Use:   "pull MACHINE.NUMBER URL",
	Short: "Pull a CI build artifact into the store",
	Long: `Pull downloads the artifact at URL, validates it and commits it to the
build store as MACHINE.NUMBER. A URL ending in "/" is taken as the CI
job directory and the configured artifact name is appended. Pulling an
already-pulled build is a no-op.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := model.ParseBuild(args[0])
		if err != nil {
			return err
		}
		return withApp(func(a *app) error {
			url := a.settings.ArtifactURL(args[1])
			handle, err := a.worker.Enqueue(cmd.Context(), publisher.PullTask(build, url))
			if err != nil {
				return err
			}
			return handle.Wait(cmd.Context())
		})
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
