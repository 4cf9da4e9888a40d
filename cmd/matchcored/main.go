// Command matchcored runs the matching engine process: it loads
// configuration, wires one matching.Engine per configured symbol to
// its persistence store, broadcaster, and telemetry monitor, recovers
// each symbol's book from its last snapshot plus any later resting
// orders, then serves the TCP gateway and Prometheus metrics until
// signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/broadcast"
	"matchcore/internal/config"
	"matchcore/internal/matching"
	"matchcore/internal/net"
	"matchcore/internal/persistence"
	"matchcore/internal/recovery"
	"matchcore/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "matchcored: failed to load config:", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t, ctx := tomb.WithContext(ctx)

	if cfg.Metrics.Enabled {
		if err := telemetry.Register(prometheus.DefaultRegisterer); err != nil {
			log.Error().Err(err).Msg("failed to register telemetry collectors")
		}
		t.Go(func() error {
			return runMetricsServer(t, cfg.Metrics.Address, log)
		})
	}

	engines := make(map[string]*net.SymbolEngine, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		se, err := wireSymbol(ctx, t, cfg, sym, log)
		if err != nil {
			log.Error().Err(err).Str("symbol", sym.Symbol).Msg("failed to wire symbol, aborting startup")
			os.Exit(1)
		}
		engines[sym.Symbol] = se
	}

	server := net.New(cfg.Server.Address, cfg.Server.Port, engines, log)
	t.Go(func() error {
		return server.Run(ctx)
	})

	log.Info().Int("symbols", len(engines)).Msg("matchcored started")

	<-t.Dying()
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("matchcored stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("matchcored stopped cleanly")
}

// wireSymbol builds one symbol's full stack: durable store, recovery
// replay, matching engine (bound to persistence/broadcast/telemetry
// sinks), and the background workers that drain its queues.
func wireSymbol(ctx context.Context, t *tomb.Tomb, cfg *config.Config, sym config.SymbolConfig, log zerolog.Logger) (*net.SymbolEngine, error) {
	symLog := log.With().Str("symbol", sym.Symbol).Logger()

	store, err := persistence.Open(cfg.Persistence.DataDir, sym.Symbol, symLog)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	monitor := telemetry.NewMonitor(sym.Symbol)
	engine := matching.New(sym.Symbol, sym.MakerFee, sym.TakerFee,
		matching.WithLogger(symLog),
		matching.WithLatencyRecorder(monitor),
	)

	// Persistence queue and broadcaster both need a reference to the
	// engine (BookSnapshotter / BookView), so they are attached after
	// construction rather than via New's options, before recovery
	// replays any orders and before the engine takes its first
	// submission.
	queue := persistence.NewAsyncQueue(store, symLog)
	bcast := broadcast.New(sym.Symbol, engine, cfg.Broadcast.DepthLevels, symLog)
	engine.SetPersistence(queue)
	engine.SetBroadcast(bcast)

	report, err := recovery.Recover(ctx, store, engine, sym.Symbol, symLog)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	symLog.Info().
		Bool("snapshot_loaded", report.SnapshotLoaded).
		Int("orders_restored", report.OrdersRestored).
		Int("orders_skipped", report.OrdersSkipped).
		Msg("recovery complete")

	scheduler := persistence.NewSnapshotScheduler(store, sym.Symbol, engine, cfg.Persistence.SnapshotInterval, symLog)

	t.Go(func() error { return queue.Run(t) })
	t.Go(func() error { return bcast.Run(t) })
	t.Go(func() error { return scheduler.Run(t) })
	t.Go(func() error { return runRetentionLoop(t, store, cfg.Persistence.RetentionDays, symLog) })

	return &net.SymbolEngine{Engine: engine, Broadcaster: bcast}, nil
}

// runRetentionLoop periodically deletes filled/cancelled orders, old
// trades, and stale snapshots past the configured retention window,
// mirroring the original's daily cleanup_old_data schedule.
func runRetentionLoop(t *tomb.Tomb, store *persistence.Store, retentionDays int, log zerolog.Logger) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := store.Cleanup(ctx, cutoff)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("retention cleanup failed")
			}
		}
	}
}

func runMetricsServer(t *tomb.Tomb, address string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: address, Handler: mux}

	t.Go(func() error {
		<-t.Dying()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().Str("address", address).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
