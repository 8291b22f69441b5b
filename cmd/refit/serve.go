package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/refit/pkg/api"
	"github.com/cuemby/refit/pkg/events"
	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/release"
	"github.com/cuemby/refit/pkg/updater"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the update API and maintenance gate",
	Long: `Serve the update API, health and metrics endpoints, and optionally
proxy the application behind the maintenance gate.

Scheduled release checks run in the background; updates are only started
on request.

Examples:
  # Serve with the configured address
  refit serve -c /etc/refit/refit.yaml

  # Front the application on :8080
  refit serve --addr :8080 --upstream http://127.0.0.1:8000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().String("upstream", "", "Application URL proxied behind the maintenance gate")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if upstream, _ := cmd.Flags().GetString("upstream"); upstream != "" {
		cfg.Server.UpstreamURL = upstream
	}
	logger := log.WithComponent("serve")

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	collector := metrics.NewCollector(broker)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.SetCriticalComponents(metrics.ComponentAPI, metrics.ComponentUpdater)

	st, err := newStack(cfg, broker)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.store != nil {
		metrics.RegisterComponent(metrics.ComponentStore, true, "")
	} else {
		metrics.MarkDegraded(metrics.ComponentStore, "run history disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick up maintenance changes made by the CLI on this host
	go func() {
		if err := st.gate.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("Maintenance record watch stopped")
		}
	}()

	sched, err := release.NewScheduler(cfg.Release.Schedule, func(ctx context.Context) error {
		_, err := st.orch.Check(ctx)
		if errors.Is(err, updater.ErrBusy) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	apiServer, err := api.NewServer(api.Config{
		Updater:         st.orch,
		Gate:            st.gate,
		ChecksPerMinute: cfg.Server.ChecksPerMinute,
		UpstreamURL:     cfg.Server.UpstreamURL,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(cfg.Server.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("install_root", st.installRoot).
		Str("version", st.releases.CurrentVersion()).
		Msg("Refit is running")

	// SIGHUP is how the signal-self restart strategy asks for a restart
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("API server shutdown incomplete")
	}
	return serveErr
}
