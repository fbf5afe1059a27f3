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

	"github.com/joho/godotenv"

	"pulsehub/internal/api"
	"pulsehub/internal/config"
	"pulsehub/internal/hub"
	"pulsehub/internal/logger"
	"pulsehub/internal/monitoring"
	"pulsehub/internal/source"
	"pulsehub/internal/store"
)

func main() {
	configFile := flag.String("config", "configs/config.yaml", "configuration file path")
	flag.Parse()

	// .env is optional, used in development only.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Logging)
	log.Info("starting pulsehub",
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"sources", len(cfg.Sources),
	)

	metrics := monitoring.NewMetrics()

	st, redisStore := buildStore(cfg, log)
	defer st.Close()

	connectors, err := buildConnectors(cfg, redisStore, log)
	if err != nil {
		log.Error("failed to build source connectors", "error", err)
		os.Exit(1)
	}

	h := hub.New(cfg.Pipeline, connectors, st, metrics, log)
	for _, sc := range cfg.Sources {
		if sc.FailureThreshold > 0 {
			h.SetFailureThreshold(sc.Name, sc.FailureThreshold)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := h.Start(ctx); err != nil {
		log.Error("failed to start hub", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(cfg, h, metrics, log)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("API server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := h.Stop(shutdownCtx); err != nil {
		log.Error("hub shutdown failed", "error", err)
	}
	log.Info("pulsehub stopped")
}

// buildStore picks the snapshot/alert store. Redis wins when enabled, then
// Postgres; both are optional and a connection failure falls back to the
// in-memory store rather than preventing startup.
func buildStore(cfg *config.Config, log logger.Logger) (store.Store, *store.RedisStore) {
	if cfg.Redis.Enabled {
		rs, err := store.NewRedisStore(cfg.Redis, 24*time.Hour)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-memory store", "error", err)
		} else {
			log.Info("using redis store", "addr", cfg.Redis.Addr)
			return rs, rs
		}
	}
	if cfg.Postgres.Enabled {
		ps, err := store.NewPostgresStore(cfg.Postgres)
		if err != nil {
			log.Warn("postgres unavailable, falling back to in-memory store", "error", err)
		} else {
			log.Info("using postgres store")
			return ps, nil
		}
	}
	return store.NewMemoryStore(), nil
}

func buildConnectors(cfg *config.Config, redisStore *store.RedisStore, log logger.Logger) ([]source.Connector, error) {
	connectors := make([]source.Connector, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		var c source.Connector
		var err error
		if redisStore != nil {
			c, err = source.Build(sc, redisStore.Client(), log)
		} else {
			c, err = source.Build(sc, nil, log)
		}
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		connectors = append(connectors, c)
	}
	return connectors, nil
}
