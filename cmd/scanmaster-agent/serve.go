package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/MacJediWizard/scanmaster/internal/airgap"
	"github.com/MacJediWizard/scanmaster/internal/api"
	"github.com/MacJediWizard/scanmaster/internal/api/handlers"
	"github.com/MacJediWizard/scanmaster/internal/license"
	"github.com/MacJediWizard/scanmaster/internal/metrics"
	"github.com/MacJediWizard/scanmaster/internal/updates"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch removable media for update packages",
		Long: `Scan the configured media roots and removable media on the configured
schedule and log every update package that becomes available. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAgent()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watcher := a.watcher(nil)
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("start update watcher: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Watching for update media. Press Ctrl+C to stop.")
			<-ctx.Done()

			<-watcher.Stop().Done()
			return nil
		},
	}
}

func (a *agent) watcher(observer updates.Observer) *updates.Watcher {
	var lister airgap.PartitionLister
	if a.cfg.ShouldDetectMedia() {
		lister = airgap.SystemPartitions{}
	}
	return updates.NewWatcher(updates.Config{
		Schedule:    a.cfg.Updates.Schedule,
		Roots:       a.cfg.Updates.MediaRoots,
		DetectMedia: a.cfg.ShouldDetectMedia(),
	}, a.scanner(), lister, observer, a.logger)
}

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API for the ScanMaster application",
		Long: `Run the local HTTP API on a loopback address. The API verifies license
keys, reports and installs update packages, and exposes Prometheus metrics
on /metrics. The update watcher runs in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadAgent()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				a.cfg.API.ListenAddr = listenAddr
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config or LISTEN_ADDR)")
	return cmd
}

func (a *agent) serve(ctx context.Context) error {
	logger := a.logger
	if a.env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("app_version", a.appVersion()).
		Msg("Starting ScanMaster agent")

	if a.env.AirGapMode {
		for _, f := range airgap.DisabledFeatures() {
			logger.Info().Str("feature", f.Name).Msg("disabled in air-gap mode")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewPrometheusMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	verifier, err := a.verifier()
	if err != nil {
		return err
	}
	pipeline, err := a.pipeline(m, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := a.watcher(m)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start update watcher: %w", err)
	}
	defer func() { <-watcher.Stop().Done() }()

	deps := api.Dependencies{
		Watcher:    watcher,
		Scanner:    a.scanner(),
		Pipeline:   pipeline,
		Partitions: airgap.SystemPartitions{},
		Metrics:    m,
		HealthChecks: map[string]handlers.HealthCheck{
			"update_watcher": func(context.Context) error {
				if !watcher.IsRunning() {
					return errors.New("update watcher stopped")
				}
				return nil
			},
			"license": func(context.Context) error {
				if verifier == nil {
					return license.ErrMissingSecret
				}
				return nil
			},
		},
	}
	if verifier != nil {
		deps.Verifier = verifier
	} else {
		logger.Warn().Msg("LICENSE_SECRET not set; license verification is disabled")
	}

	router, err := api.NewRouter(api.Config{
		RateLimitRequests: a.cfg.API.RateLimitRequests,
		RateLimitPeriod:   a.cfg.API.RateLimitPeriod,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
		AppVersion:        a.cfg.AppVersion,
		AirGapMode:        a.env.AirGapMode,
	}, deps, logger)
	if err != nil {
		return fmt.Errorf("initialize router: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.API.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down agent")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info().Msg("Agent stopped gracefully")
	return nil
}
