package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/notarium/notarium/internal/accounting"
	"github.com/notarium/notarium/internal/acts"
	"github.com/notarium/notarium/internal/app"
	"github.com/notarium/notarium/internal/observability"
	"github.com/notarium/notarium/internal/platform/cache"
	"github.com/notarium/notarium/internal/platform/db"
	"github.com/notarium/notarium/internal/rbac"
	"github.com/notarium/notarium/internal/shared"
	"github.com/notarium/notarium/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("report cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	rbacService := rbac.NewDefaultService()
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	ledgerService := app.NewLedgerService(cfg, dbpool, app.LedgerDeps{Redis: redisClient, Metrics: metrics})
	accountingHandler := accounting.NewHandler(logger, ledgerService, rbacMiddleware, idempotencyStore, 0)

	actsService, err := app.NewActsService(cfg, dbpool, metrics)
	if err != nil {
		logger.Error("init acts service", slog.Any("error", err))
		os.Exit(1)
	}
	actsHandler := acts.NewHandler(logger, actsService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		DB:                dbpool,
		RBACMiddleware:    rbacMiddleware,
		AccountingHandler: accountingHandler,
		ActsHandler:       actsHandler,
		RolesHandler:      rbac.NewRolesHandler(logger, rbacService, rbacMiddleware),
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("signing", cfg.SigningMode))
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
