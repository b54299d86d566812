package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/database"
	"github.com/JonMunkholm/inventory/internal/logging"
	"github.com/JonMunkholm/inventory/internal/metrics"
	"github.com/JonMunkholm/inventory/internal/queue"
	"github.com/JonMunkholm/inventory/internal/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, pool); err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	store := database.New(pool)
	jobs := queue.New(pool)

	service := core.NewService(store,
		core.WithJobQueue(jobs),
		core.WithUploadLimiter(core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)),
		core.WithDefaultThreshold(cfg.Import.BackgroundThreshold),
		core.WithProgressInterval(cfg.Import.ProgressInterval),
		core.WithImportTimeout(cfg.Upload.Timeout),
	)

	var worker *queue.Worker
	if cfg.Import.WorkerConcurrency > 0 {
		if _, err := jobs.RequeueInterrupted(ctx); err != nil {
			slog.Error("failed to requeue interrupted jobs", "error", err)
		}
		worker = queue.NewWorker(jobs, service, cfg.Import.WorkerConcurrency, cfg.Import.WorkerPollInterval)
		worker.Start(ctx)
	} else {
		slog.Info("background worker disabled; queued imports wait for another process")
	}

	stopRetention, err := service.StartRetentionScheduler(ctx, core.RetentionConfig{
		RetentionDays: cfg.Import.HistoryRetentionDays,
		CronSpec:      cfg.Import.RetentionCron,
	})
	if err != nil {
		slog.Error("failed to start retention scheduler", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(ctx, service, cfg, store)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			slog.Error("server failed", "error", err)
		}
		stop()
	case <-ctx.Done():
		slog.Info("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopRetention()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	if status := service.UploadLimiterStatus(); status.Active > 0 {
		slog.Info("waiting for imports to complete", "active", status.Active)
		if err := service.WaitForImports(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		}
	}

	if worker != nil {
		if err := worker.Wait(shutdownCtx); err != nil {
			slog.Warn("background imports cancelled at shutdown", "error", err)
		}
	}

	slog.Info("server stopped")
}
