package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/hibiken/asynq"

	"github.com/nahum29/tiendita/internal/app"
	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/jobmetrics"
	"github.com/nahum29/tiendita/internal/observability"
	"github.com/nahum29/tiendita/internal/platform/cache"
	"github.com/nahum29/tiendita/internal/platform/db"
	"github.com/nahum29/tiendita/internal/reports"
	"github.com/nahum29/tiendita/internal/shared"
	"github.com/nahum29/tiendita/jobs"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if app.PlanStartup(cfg, nil) == app.StartSkip {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	calendar := credits.NewCalendar(cfg.Location(), nil)
	creditsService := credits.NewService(credits.NewRepository(pool, calendar, nil), shared.NewAuditLogger(pool), credits.ServiceConfig{
		SurplusPolicy: cfg.SurplusPolicy(),
		Calendar:      calendar,
		Logger:        logger,
		Notifier:      shared.NewNotifier(redisClient, logger),
		Cache:         reports.NewCache(redisClient, cfg.DashboardCacheTTL, metrics),
		Metrics:       metrics,
	})

	creditJobs := jobs.NewCreditJobs(creditsService, shared.NewLocker(redisClient), logger, jobMetrics)
	cleanupJob := jobs.NewCleanupJob(shared.NewIdempotencyStore(pool), logger, jobMetrics)

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(int(cfg.IdempotencyRetention / time.Hour))
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts.AsynqOpt(),
		Logger:    logger,
		Location:  cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCreditsMarkOverdue, Handler: creditJobs.HandleMarkOverdue},
			{Type: jobs.TaskCreditsBalanceIntegrity, Handler: creditJobs.HandleBalanceIntegrity},
			{Type: jobs.TaskCreditsBackfill, Handler: creditJobs.HandleBackfill},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "5 0 * * *", Task: jobs.NewMarkOverdueTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 0 * * *", Task: jobs.NewBalanceIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
