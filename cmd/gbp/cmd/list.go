package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list MACHINE",
	Short: "List a machine's builds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			recs, err := a.publisher.Records(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 2, 2, ' ', 0)
			fmt.Fprintln(w, "BUILD\tFLAGS\tTAGS\tSUBMITTED\tNOTE")
			for _, rec := range recs {
				flags := recordFlags(rec.Pulled(), rec.Published, rec.Keep)
				tags := strings.Join(nonEmpty(a.store.Tags(rec.Build)), ",")
				note, _, _ := strings.Cut(rec.Note, "\n")
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.ID(), flags, tags,
					rec.Submitted.Format("2006-01-02 15:04"), note)
			}
			return w.Flush()
		})
	},
}

var machinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "Summarize all machines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			infos, err := a.publisher.Machines()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 2, 2, ' ', 0)
			fmt.Fprintln(w, "MACHINE\tBUILDS\tLATEST\tPUBLISHED")
			for _, info := range infos {
				latest, published := "-", "-"
				if info.Latest != nil {
					latest = info.Latest.ID()
				}
				if info.Published != nil {
					published = info.Published.ID()
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
					info.Machine, info.BuildCount, latest, published)
			}
			return w.Flush()
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store node and byte totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			stats, err := a.publisher.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "nodes: %d\nbytes: %s\n",
				stats.Count, units.HumanSize(float64(stats.Bytes)))
			return nil
		})
	},
}

func recordFlags(pulled, published, keep bool) string {
	flags := []byte("---")
	if pulled {
		flags[0] = 'P'
	}
	if published {
		flags[1] = '*'
	}
	if keep {
		flags[2] = 'K'
	}
	return string(flags)
}

func nonEmpty(tags []string) []string {
	out := tags[:0]
	for _, tag := range tags {
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(machinesCmd)
	rootCmd.AddCommand(statsCmd)
}
