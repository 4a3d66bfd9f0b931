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

	"github.com/avijit969/devploy-backend/internal/app/migrate"
	"github.com/avijit969/devploy-backend/internal/config"
	httpx "github.com/avijit969/devploy-backend/internal/http"
	"github.com/avijit969/devploy-backend/internal/logger"
	"github.com/avijit969/devploy-backend/internal/repository/postgres"
	"github.com/avijit969/devploy-backend/internal/service/pipeline"
	"github.com/avijit969/devploy-backend/internal/service/serve"
	"github.com/avijit969/devploy-backend/internal/service/webhook"
	"github.com/avijit969/devploy-backend/internal/storage"
	"github.com/avijit969/devploy-backend/internal/workspace"
	"github.com/avijit969/devploy-backend/internal/ws"
)

func main() {
	cfg := config.Load()
	log := logger.New("devploy", slog.LevelInfo)

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
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)

	store, err := storage.NewS3Store(ctx, storage.S3Options{
		Endpoint:  cfg.StorageEndpoint,
		Region:    cfg.StorageRegion,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		Bucket:    cfg.StorageBucket,
	})
	if err != nil {
		log.Error("failed to configure object store", "error", err)
		os.Exit(1)
	}

	workspaceMgr, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		log.Error("failed to prepare workspace root", "error", err)
		os.Exit(1)
	}

	logHub := ws.NewHub()
	pipelineSvc := pipeline.New(repo, repo, store, workspaceMgr, pipeline.GitFetcher{}, log, cfg, logHub)
	buildPool := pipeline.NewPool(pipelineSvc, cfg.BuildWorkers, cfg.BuildQueueSize, log)
	buildPool.Start(ctx)
	defer buildPool.Stop()

	webhookSvc := webhook.New(repo, buildPool, cfg.WebhookSecret, log)
	resolver := serve.NewResolver(store, cfg.DomainSuffix, log)

	var limiter httpx.RateLimiter
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		limiter, err = httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, falling back to in-memory", "error", err)
			limiter = nil
		}
	}
	if limiter == nil {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, cfg, repo, repo, pipelineSvc, webhookSvc, resolver, logHub, limiter)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
