package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/sinecast/internal/adapter/httpserver"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/app"
	"github.com/pscheid92/sinecast/internal/broadcast"
	"github.com/pscheid92/sinecast/internal/domain"
	"github.com/pscheid92/sinecast/internal/platform/config"
	"github.com/pscheid92/sinecast/internal/platform/logging"
	"github.com/pscheid92/sinecast/internal/platform/version"
	"github.com/pscheid92/sinecast/internal/series"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupBroadcaster returns nil unless the single-scheduler mode is configured.
func setupBroadcaster(cfg *config.Config, store *series.Store, clock clockwork.Clock, streamMetrics *metrics.StreamMetrics) *broadcast.Broadcaster {
	if cfg.Mode() != domain.AdvanceModeBroadcast {
		return nil
	}
	return broadcast.NewBroadcaster(store, clock, cfg.StreamInterval, cfg.AdvanceStep, streamMetrics)
}

func run(ctx context.Context, cfg *config.Config) error {
	clock := clockwork.NewRealClock()

	store := series.NewStore()
	metricsSet := metrics.NewSet(store.Len)
	appSvc := app.NewService(store, nil, metricsSet.Series)

	broadcaster := setupBroadcaster(cfg, store, clock, metricsSet.Stream)

	// A nil *Broadcaster must not become a non-nil interface value.
	var srv *httpserver.Server
	var err error
	if broadcaster != nil {
		srv, err = httpserver.NewServer(cfg, appSvc, store, broadcaster, clock, metricsSet, nil)
	} else {
		srv, err = httpserver.NewServer(cfg, appSvc, store, nil, clock, metricsSet, nil)
	}
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if broadcaster != nil {
			broadcaster.Stop()
		}
		return nil
	})

	return g.Wait()
}

func main() {
	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"version", version.Get().String(),
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"advance_mode", cfg.Mode(),
		"interval", cfg.StreamInterval,
		"step", cfg.AdvanceStep,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
