package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mtr-industry/mtr-backoffice/internal/app"
	"github.com/mtr-industry/mtr-backoffice/internal/auth"
	"github.com/mtr-industry/mtr-backoffice/internal/complaints"
	"github.com/mtr-industry/mtr-backoffice/internal/observability"
	"github.com/mtr-industry/mtr-backoffice/internal/orders"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/cache"
	"github.com/mtr-industry/mtr-backoffice/internal/platform/db"
	"github.com/mtr-industry/mtr-backoffice/internal/quotes"
	"github.com/mtr-industry/mtr-backoffice/internal/requests"
	"github.com/mtr-industry/mtr-backoffice/internal/shared"
	"github.com/mtr-industry/mtr-backoffice/internal/users"
	"github.com/mtr-industry/mtr-backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConn)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	dispatcher := jobs.NewClient(redisOpt)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	domain, err := app.NewDomain(app.DomainParams{
		Config:     cfg,
		Pool:       pool,
		Redis:      redisClient,
		Dispatcher: dispatcher,
		Observer:   metrics.Render(),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "mtr_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	guard := auth.Middleware{Logger: logger}

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(pool)), sessionManager, csrfManager)
	usersHandler := users.NewHandler(logger, domain.Users, guard)
	requestsHandler := requests.NewHandler(logger, domain.Requests, domain.Documents, domain.Idempotency, guard, cfg.UploadMaxBytes)
	quotesHandler := quotes.NewHandler(logger, domain.Quotes, domain.Documents, guard)
	ordersHandler := orders.NewHandler(logger, domain.Orders, guard)
	complaintsHandler := complaints.NewHandler(logger, domain.Complaints, domain.Documents, guard, cfg.UploadMaxBytes)

	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Metrics:           metrics,
		Guard:             guard,
		Database:          pool,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		RequestsHandler:   requestsHandler,
		QuotesHandler:     quotesHandler,
		OrdersHandler:     ordersHandler,
		ComplaintsHandler: complaintsHandler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
