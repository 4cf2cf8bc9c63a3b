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

	"github.com/fichaflow/fichaflow/internal/app"
	"github.com/fichaflow/fichaflow/internal/attendance"
	"github.com/fichaflow/fichaflow/internal/auth"
	"github.com/fichaflow/fichaflow/internal/authz"
	"github.com/fichaflow/fichaflow/internal/excuses"
	"github.com/fichaflow/fichaflow/internal/fichas"
	"github.com/fichaflow/fichaflow/internal/observability"
	"github.com/fichaflow/fichaflow/internal/platform/cache"
	"github.com/fichaflow/fichaflow/internal/platform/db"
	"github.com/fichaflow/fichaflow/internal/reports"
	"github.com/fichaflow/fichaflow/internal/reports/export"
	"github.com/fichaflow/fichaflow/internal/shared"
	"github.com/fichaflow/fichaflow/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
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

	sessionManager := shared.NewSessionManager(redisClient, "fichaflow_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	policy := authz.NewPolicy()

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	fichasRepo := fichas.NewRepository(pool)
	fichasService := fichas.NewService(fichasRepo, policy)
	fichasHandler := fichas.NewHandler(logger, fichasService, policy)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)

	attendanceRepo := attendance.NewRepository(pool)
	attendanceService := attendance.NewService(attendanceRepo, fichasService, policy)
	attendanceService.SetReportInvalidator(reportCache)
	attendanceHandler := attendance.NewHandler(logger, attendanceService, policy)

	excusesRepo := excuses.NewRepository(pool)
	excusesService := excuses.NewService(excusesRepo, fichasService, policy, attendanceService)
	excusesHandler := excuses.NewHandler(logger, excusesService)

	reportsRepo := reports.NewPGRepository(pool)
	reportsService := reports.NewService(reportsRepo, fichasService, policy, reports.Config{
		CountUnsetAsAbsent: cfg.ReportUnsetAsAbsent,
		TopN:               cfg.ReportTopN,
	})
	pdfExporter := &export.PDFExporter{Endpoint: cfg.GotenbergURL, Client: http.DefaultClient}
	reportsHandler := reports.NewHandler(logger, reportsService, reportCache, policy, pdfExporter, export.WriteGlobalReportCSV)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		AuthHandler:       authHandler,
		FichasHandler:     fichasHandler,
		AttendanceHandler: attendanceHandler,
		ExcusesHandler:    excusesHandler,
		ReportsHandler:    reportsHandler,
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
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
