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
	"github.com/redis/go-redis/v9"

	"github.com/nahum29/tiendita/cmd/tiendita/cli"
	"github.com/nahum29/tiendita/internal/app"
	"github.com/nahum29/tiendita/internal/audit"
	"github.com/nahum29/tiendita/internal/credits"
	"github.com/nahum29/tiendita/internal/customers"
	"github.com/nahum29/tiendita/internal/inventory"
	"github.com/nahum29/tiendita/internal/observability"
	"github.com/nahum29/tiendita/internal/platform/cache"
	"github.com/nahum29/tiendita/internal/platform/db"
	"github.com/nahum29/tiendita/internal/reports"
	"github.com/nahum29/tiendita/internal/sales"
	"github.com/nahum29/tiendita/internal/shared"
	"github.com/nahum29/tiendita/jobs"
	"github.com/nahum29/tiendita/report"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	startup := app.PlanStartup(cfg, os.Args[1:])
	if startup == app.StartSkip {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	var redisClient *redis.Client
	if client, err := cache.New(ctx, redisOpts); err != nil {
		logger.Warn("redis unavailable, running without cache and notifications", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	notifier := shared.NewNotifier(redisClient, logger)
	reportsCache := reports.NewCache(redisClient, cfg.DashboardCacheTTL, metrics)
	calendar := credits.NewCalendar(cfg.Location(), nil)

	creditsRepo := credits.NewRepository(dbpool, calendar, idempotencyStore)
	creditsService := credits.NewService(creditsRepo, auditLogger, credits.ServiceConfig{
		SurplusPolicy: cfg.SurplusPolicy(),
		Calendar:      calendar,
		Logger:        logger,
		Notifier:      notifier,
		Cache:         reportsCache,
		Metrics:       metrics,
	})

	customersRepo := customers.NewRepository(dbpool)
	customersService := customers.NewService(customersRepo, auditLogger, logger)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, inventory.ServiceConfig{
		Logger:   logger,
		Notifier: notifier,
		Cache:    reportsCache,
	})

	salesRepo := sales.NewRepository(dbpool, calendar, idempotencyStore)
	salesService := sales.NewService(salesRepo, inventoryService, creditsService, auditLogger, sales.ServiceConfig{
		Logger:   logger,
		Notifier: notifier,
		Cache:    reportsCache,
		Metrics:  metrics,
	})

	reportsRepo := reports.NewRepository(dbpool)
	reportsService := reports.NewService(reportsRepo, reportsCache, cfg.Location(), logger)

	reportClient := report.NewClient(cfg.GotenbergURL)

	jobsCLI := cli.NewJobsCLI(redisOpts.AsynqOpt())
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	if startup == app.StartCommand {
		code := cli.Run(ctx, os.Args[1:], cli.Env{
			Jobs:    jobsCLI,
			Credits: creditsService,
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
			Stdin:   os.Stdin,
		})
		_ = jobsCLI.Close()
		dbpool.Close()
		stop()
		os.Exit(code)
	}

	jobClient := jobs.NewClient(redisOpts.AsynqOpt())
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		Events:           notifier,
		CreditsHandler:   credits.NewHandler(logger, creditsService),
		CustomersHandler: customers.NewHandler(logger, customersService),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		SalesHandler:     sales.NewHandler(logger, salesService, reportClient, cfg.Location()),
		ReportsHandler:   reports.NewHandler(logger, reportsService),
		RendererHandler:  report.NewHandler(reportClient, logger),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), cfg.Location()),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", cfg.Location().String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
