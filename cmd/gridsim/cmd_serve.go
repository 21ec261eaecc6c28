package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/gridsim/internal/api"
	"github.com/signalsfoundry/gridsim/internal/config"
	"github.com/signalsfoundry/gridsim/internal/external"
	"github.com/signalsfoundry/gridsim/internal/logging"
	"github.com/signalsfoundry/gridsim/internal/observability"
	"github.com/signalsfoundry/gridsim/internal/sim/state"
	"github.com/signalsfoundry/gridsim/timectrl"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket service",
		Long: `Serve the shared grid over HTTP. A single tick loop advances the grid at
the configured interval and streams every snapshot to websocket clients
on /ws. Prometheus metrics are served separately on the metrics address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().String("addr", "", "API listen address (overrides config)")
	cmd.Flags().String("metrics-addr", "", "Prometheus /metrics address (overrides config)")
	cmd.Flags().Duration("tick", 0, "Streaming tick interval (overrides config)")
	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Server.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if cmd.Flags().Changed("tick") {
		cfg.Server.TickInterval, _ = cmd.Flags().GetDuration("tick")
	}
	return cfg.Validate()
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.LoggerOptions())
	if !strings.EqualFold(cfg.Logging.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingOptions(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewGridCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	extCfg := cfg.ExternalOptions(log)
	st := state.NewGridState(
		buildEngine(ctx, cfg, log),
		log,
		state.WithMetricsRecorder(collector),
	)
	srv := api.NewServer(st,
		api.WithLogger(log),
		api.WithCollector(collector),
		api.WithChargerSource(external.NewChargerClient(cfg.External.ChargerURL, extCfg)),
		api.WithEIASource(external.NewEIAClient(cfg.External.EIAURL, cfg.External.EIAAPIKey, extCfg)),
	)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	tc := timectrl.NewTimeController(time.Now(), cfg.Server.TickInterval, timectrl.RealTime)
	tc.AddListener(func(time.Time) {
		srv.TickAndBroadcast(loopCtx)
	})
	loopDone := tc.Start(loopCtx, 0)

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting grid API server",
			logging.String("addr", cfg.Server.Addr),
			logging.Duration("tick_interval", cfg.Server.TickInterval))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("api server: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down grid API server")
	stopLoop()
	<-loopDone
	srv.Hub().Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "api server shutdown", logging.Err(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.GridCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
