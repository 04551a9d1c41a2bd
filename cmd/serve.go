package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vrf/app"
	"github.com/kilianp07/vrf/config"
	"github.com/kilianp07/vrf/infra/logger"
	"github.com/kilianp07/vrf/infra/metrics"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve /metrics and the training history API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, defaults to metrics.prometheus_addr or :2112")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	return withService(func(ctx context.Context, cfg *config.Config, svc *app.Service) error {
		addr := serveAddr
		if addr == "" {
			addr = cfg.Metrics.PrometheusAddr
		}
		if addr == "" {
			addr = ":2112"
		}
		if svc.History() == nil {
			return fmt.Errorf("serve: history backend is none")
		}
		logger.New("serve").Infof("listening on %s", addr)
		return metrics.StartPromServer(ctx, addr, svc.Routes())
	})
}
