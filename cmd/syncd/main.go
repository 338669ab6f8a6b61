package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/app/migrate"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/bus"
	httpx "github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/http"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/repository/postgres"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/service/auth"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/store"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/ws"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/pkg/config"
	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/pkg/logger"
)

func main() {
	cfg := config.LoadSyncConfig()
	log := logger.New("syncd", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if cfg.AutoMigrate {
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	} else {
		// Multi-instance rollouts migrate once via cmd/migrate instead.
		log.Info("startup migrations disabled, assuming schema is current")
	}

	repo := postgres.New(pool)

	changeBus := bus.Bus(bus.NewMemoryBus())
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisBus, err := bus.NewRedisBus(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis change bus unavailable, staying in-process", "error", err)
		} else {
			changeBus = redisBus
		}
	}
	defer changeBus.Close()

	authSvc := auth.New(repo, repo, log, cfg)
	sessions := store.NewManager(store.Deps{
		Memberships: repo,
		Projects:    repo,
		Tasks:       repo,
		Chat:        repo,
		Bus:         changeBus,
	}, store.Options{
		ChatHistoryLimit: cfg.ChatHistoryLimit,
		EventBuffer:      cfg.EventBuffer,
	}, cfg.SessionIdleTTL, log)
	defer sessions.Close()

	hub := ws.NewHub()
	defer hub.Stop()

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	var busHealth func(context.Context) error
	if pinger, ok := changeBus.(interface{ Ping(context.Context) error }); ok {
		busHealth = pinger.Ping
	}

	router := httpx.NewRouter(log, authSvc, sessions, hub, limiter, pool.Ping, busHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("sync gateway starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("sync gateway stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
