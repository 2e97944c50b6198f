package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nocturne-dev/nocturne-bot/internal/database"
	"github.com/nocturne-dev/nocturne-bot/internal/health"
	"github.com/nocturne-dev/nocturne-bot/internal/lifecycle"
	"github.com/nocturne-dev/nocturne-bot/internal/localstore"
	"github.com/nocturne-dev/nocturne-bot/internal/manager"
	"github.com/nocturne-dev/nocturne-bot/internal/ratelimit"
	"github.com/nocturne-dev/nocturne-bot/internal/remotestore"
	"github.com/nocturne-dev/nocturne-bot/pkg/config"
	"github.com/nocturne-dev/nocturne-bot/pkg/graceful"
	"github.com/nocturne-dev/nocturne-bot/pkg/logger"

	_ "github.com/lib/pq"
)

const shutdownGrace = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	sentryEnabled := cfg.Sentry.DSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
	}

	log, logLevel := logger.New(logger.Options{
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		File:          cfg.Log.File,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		MaxBackups:    cfg.Log.MaxBackups,
		MaxAgeDays:    cfg.Log.MaxAgeDays,
		SentryEnabled: sentryEnabled,
	})
	slog.SetDefault(log)

	log.Info("starting nocturne persistence service",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.HTTP.Port),
		slog.Bool("force_offline", cfg.Remote.ForceOffline),
	)

	// The local store is the durability floor; without it the service
	// cannot honor a single write and must not come up.
	local, err := localstore.Open(ctx, cfg.Local.Path, log)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}

	// sql.Open does not dial; an unreachable remote shows up in the initial
	// health check and the manager starts local instead.
	remoteDB, err := sql.Open("postgres", cfg.Remote.RemoteDSN())
	if err != nil {
		return fmt.Errorf("open remote pool: %w", err)
	}
	if cfg.Remote.MaxOpenConns > 0 {
		remoteDB.SetMaxOpenConns(cfg.Remote.MaxOpenConns)
	}
	if cfg.Remote.MaxIdleConns > 0 {
		remoteDB.SetMaxIdleConns(cfg.Remote.MaxIdleConns)
	}

	remote := remotestore.New(remoteDB, cacheConfig(cfg.Store.Cache), log)

	m := manager.New(local, remote, managerConfig(cfg), log)
	mode := m.Start(ctx)
	log.Info("persistence manager started", slog.String("mode", string(mode)))

	if mode == manager.ModeRemote && cfg.Remote.MigrationsDir != "" {
		migrator := database.NewMigrator(remoteDB, log)
		if err := migrator.ApplyDir(ctx, cfg.Remote.MigrationsDir); err != nil {
			// The local store still serves; remote schema drift surfaces in
			// sync errors rather than blocking startup.
			log.Error("remote migrations failed", slog.Any("error", err))
		}
	}

	config.Watch(v, log, func(fresh *config.Config) {
		logLevel.Set(logger.ParseLevel(fresh.Log.Level))
		log.Info("config reloaded; log level applied, store tunables apply on next restart",
			slog.String("log_level", fresh.Log.Level),
		)
	})

	checker := health.NewChecker(log)
	checker.AddCheck("local_store", local)
	checker.AddCheck("manager", health.CheckFunc(func(context.Context) error {
		if m.Mode() == manager.ModeUnknown {
			return fmt.Errorf("manager not started")
		}
		return nil
	}))

	limiter := ratelimit.NewLimiter(60, time.Minute)
	go ratelimit.NewCleaner(limiter, log, 5*time.Minute, 10*time.Minute).Run(ctx)

	srv := graceful.NewServer(log, debugServer(cfg.HTTP.Port, checker, m, limiter), cfg.HTTP.ShutdownTimeout)

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Run(ctx) }()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("persistence-manager", m.Shutdown)
	if sentryEnabled {
		shutdown.Register("sentry-flush", func(context.Context) error {
			sentry.Flush(2 * time.Second)
			return nil
		})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		return err
	}

	return <-serverDone
}

// debugServer exposes the operational endpoints: health, metrics and a
// stats snapshot of the persistence manager.
func debugServer(port string, checker *health.Checker, m *manager.Manager, limiter *ratelimit.Limiter) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Stats(r.Context()))
	})

	limited := ratelimit.Middleware(limiter, slog.Default(), mux)

	return &http.Server{
		Addr:              ":" + port,
		Handler:           logger.Middleware(limited),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func cacheConfig(c config.CacheConfig) remotestore.CacheConfig {
	cfg := remotestore.DefaultCacheConfig()
	if c.GuildTTL > 0 {
		cfg.GuildTTL = c.GuildTTL
	}
	if c.GuildMaxSize > 0 {
		cfg.GuildSize = c.GuildMaxSize
	}
	if c.UserTTL > 0 {
		cfg.UserTTL = c.UserTTL
	}
	if c.UserMaxSize > 0 {
		cfg.UserSize = c.UserMaxSize
	}
	if c.EconomyTTL > 0 {
		cfg.MoneyTTL = c.EconomyTTL
	}
	if c.EconomyMaxSize > 0 {
		cfg.MoneySize = c.EconomyMaxSize
	}
	if c.LevelTTL > 0 {
		cfg.LevelTTL = c.LevelTTL
	}
	if c.LevelMaxSize > 0 {
		cfg.LevelSize = c.LevelMaxSize
	}
	return cfg
}

func managerConfig(cfg *config.Config) manager.Config {
	return manager.Config{
		ForceOffline:         cfg.Remote.ForceOffline,
		InitialHealthTimeout: cfg.Store.InitialHealthTimeout,
		HealthTimeout:        cfg.Store.HealthTimeout,
		ReadTimeout:          cfg.Store.ReadTimeout,
		WriteTimeout:         cfg.Store.WriteTimeout,
		HealthInterval:       cfg.Store.HealthInterval,
		SyncInterval:         cfg.Store.SyncInterval,
		ReconnectBackoff:     cfg.Store.ReconnectBackoff,
		SyncBatchSize:        cfg.Store.SyncBatchSize,
		ReapEveryCycles:      cfg.Store.ReapEveryCycles,
	}
}
