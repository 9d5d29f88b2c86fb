// Command engine runs the tick-to-trade pipeline: it connects to the
// configured venues' market data, feeds ticks through the selected
// strategy, routes resulting orders to execution gateways, and persists
// fills and positions as they arrive. It exits 0 on a clean shutdown and
// non-zero if startup fails.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/api"
	"github.com/latencyx/core/internal/archive"
	"github.com/latencyx/core/internal/bus"
	"github.com/latencyx/core/internal/config"
	"github.com/latencyx/core/internal/metrics"
	"github.com/latencyx/core/internal/persist"
	"github.com/latencyx/core/internal/risk"
	"github.com/latencyx/core/internal/session"
	"github.com/latencyx/core/internal/supervisor"
)

func main() {
	var configPath, strategyName string

	root := &cobra.Command{
		Use:   "engine",
		Short: "Run the multi-venue tick-to-trade pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, strategyName)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "engine.yaml", "path to the engine's YAML config")
	root.Flags().StringVar(&strategyName, "strategy", "", "strategy to run: arbitrage|marketmaker|triangular")
	root.MarkFlagRequired("strategy")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run(configPath, strategyName string) error {
	switch strategyName {
	case "arbitrage", "marketmaker", "triangular":
	default:
		return fmt.Errorf("engine: --strategy must be one of arbitrage|marketmaker|triangular, got %q", strategyName)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("engine: build logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load(configPath, strategyName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	store, err := persist.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("engine: open store: %w", err)
	}
	defer store.Close()

	eventBus := bus.New()
	metricsReg := metrics.New(prometheus.DefaultRegisterer)

	riskMgr, err := risk.NewManager(ctx, store, log)
	if err != nil {
		return fmt.Errorf("engine: build risk manager: %w", err)
	}

	// The fill channel gateways write into is owned by the Supervisor, so
	// it is constructed first; Strategy/Connectors/DashboardTask, which
	// depend on that channel, are filled in afterward via setters rather
	// than by building a second Supervisor (which would allocate a second,
	// disconnected fill channel).
	sup := supervisor.New(supervisor.Config{Risk: riskMgr, Bus: eventBus, Log: log})

	strategy, err := buildStrategy(strategyName, cfg, sup.Fills(), store, eventBus, log, metricsReg)
	if err != nil {
		return fmt.Errorf("engine: build strategy: %w", err)
	}
	sup.SetStrategy(strategy)
	sup.SetConnectors(buildConnectorSpecs(cfg, eventBus, log, metricsReg))

	sessionMgr := session.NewManager(256, log)
	apiServer := api.NewServer(store)

	mux := http.NewServeMux()
	apiServer.Register(mux)
	mux.HandleFunc("/feed", session.Handler(sessionMgr, eventBus, log))
	mux.Handle("/metrics", promhttp.Handler())

	dashboardAddr := fmt.Sprintf(":%d", cfg.MetricsPort)
	dashboardSrv := &http.Server{Addr: dashboardAddr, Handler: mux}
	sup.SetDashboardTask(runDashboard(dashboardSrv, log))

	if cfg.Archive.Bucket != "" {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive.Region)
		if err != nil {
			return fmt.Errorf("engine: build s3 client: %w", err)
		}
		archiver := archive.New(store.DB(), s3Client, cfg.Archive.Bucket, cfg.Archive.Prefix,
			cfg.Archive.IntervalHours, cfg.Archive.AfterHours, log)
		go archiver.Run(ctx)
	}
	go persist.RunRetention(ctx, store, cfg.TradeRetentionDays, log)

	log.Info("engine starting", zap.String("strategy", strategyName), zap.Strings("venues", venueNames(cfg)))
	return sup.Run(ctx)
}

// runDashboard returns a supervisor.Config.DashboardTask that serves the
// combined REST/WebSocket/metrics mux until ctx is cancelled, then shuts
// the server down gracefully.
func runDashboard(srv *http.Server, log *zap.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			log.Info("dashboard listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
				return
			}
			errCh <- nil
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
			<-errCh
			return nil
		case err := <-errCh:
			return err
		}
	}
}
