package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	workerstatus "github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

var metricsAddr string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a queue-backed worker process",
	Long: `Worker consumes tasks from the NATS JetStream queue until
interrupted. Requires BUILD_PUBLISHER_WORKER_BACKEND=nats. With
--metrics-addr set, prometheus metrics are served over HTTP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if a.nats == nil {
				return workerstatus.ErrUnknownBackend.WrapMessage(
					"worker requires the nats backend, have %q", a.settings.WorkerBackend)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				go serveMetrics(a, metricsAddr)
			}

			a.logger.Info("worker started", zap.String("queue", a.settings.WorkerNatsQueue))
			err := a.nats.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	},
}

func serveMetrics(a *app, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		a.logger.Error("metrics server failed", zap.Error(err))
	}
}

func init() {
	workerCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	rootCmd.AddCommand(workerCmd)
}
