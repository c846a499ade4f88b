package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kailas-cloud/traffmeter/internal/config"
	dbRedis "github.com/kailas-cloud/traffmeter/internal/db/redis"
	logpkg "github.com/kailas-cloud/traffmeter/internal/logger"
	"github.com/kailas-cloud/traffmeter/internal/metrics"
	ledgerrepo "github.com/kailas-cloud/traffmeter/internal/repository/ledger"
	sessionrepo "github.com/kailas-cloud/traffmeter/internal/repository/session"
	snapshotrepo "github.com/kailas-cloud/traffmeter/internal/repository/snapshot"
	chiTransport "github.com/kailas-cloud/traffmeter/internal/transport/chi"
	"github.com/kailas-cloud/traffmeter/internal/transport/telegram"
	healthuc "github.com/kailas-cloud/traffmeter/internal/usecase/health"
	provisionuc "github.com/kailas-cloud/traffmeter/internal/usecase/provision"
	reportuc "github.com/kailas-cloud/traffmeter/internal/usecase/report"
	"github.com/kailas-cloud/traffmeter/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting traffmeter",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx := context.Background()

	// Ledger database (read-mostly, external schema)
	ledgerDB, err := sql.Open("postgres", cfg.Ledger.DSN)
	if err != nil {
		logger.Fatal("Failed to open ledger database", zap.Error(err))
	}
	defer func() { _ = ledgerDB.Close() }()

	// Snapshot database; may be the same server as the ledger
	snapshotDB := ledgerDB
	if cfg.Snapshot.DSN != cfg.Ledger.DSN {
		snapshotDB, err = sql.Open("postgres", cfg.Snapshot.DSN)
		if err != nil {
			logger.Fatal("Failed to open snapshot database", zap.Error(err))
		}
		defer func() { _ = snapshotDB.Close() }()
	}

	queryTimeout := time.Duration(cfg.Ledger.QueryTimeoutSec) * time.Second
	ledgerRepo := ledgerrepo.New(ledgerDB, queryTimeout)
	snapshotRepo := snapshotrepo.New(snapshotDB)

	if err := snapshotRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to ensure snapshot schema", zap.Error(err))
	}
	logger.Info("Connected to ledger and snapshot databases")

	// Register report metrics explicitly (no init())
	metrics.RegisterReportMetrics()

	reportSvc := reportuc.New(ledgerRepo, snapshotRepo, logger)

	// Session store + wizard only matter when the chat front end runs.
	var (
		sessionRepo *sessionrepo.Store
		wizardSvc   *provisionuc.Service
		bot         *telegram.Bot
	)
	if cfg.Telegram.Token != "" {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Session.Addrs,
			Password: cfg.Session.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create session store", zap.Error(err))
		}
		defer store.Close()

		readiness := time.Duration(cfg.Session.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, readiness); err != nil {
			logger.Fatal("Session store not ready", zap.Error(err))
		}
		logger.Info("Connected to session store")

		sessionTTL := time.Duration(cfg.Session.TTLMin) * time.Minute
		sessionRepo = sessionrepo.New(store, sessionTTL)
		wizardSvc = provisionuc.New(sessionRepo, ledgerRepo, logger)

		handler := telegram.NewHandler(reportSvc, wizardSvc, cfg.Telegram.AllowedChatIDs, logger)
		pollTimeout := time.Duration(cfg.Telegram.PollTimeoutSec) * time.Second
		bot, err = telegram.NewBot(cfg.Telegram.Token, handler, pollTimeout, logger)
		if err != nil {
			logger.Fatal("Failed to start telegram bot", zap.Error(err))
		}
	}

	var sessionPinger healthuc.Pinger
	if sessionRepo != nil {
		sessionPinger = sessionRepo
	}
	healthSvc := healthuc.New(ledgerRepo, snapshotRepo, sessionPinger)

	server := chiTransport.NewServer(reportSvc, snapshotRepo, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if bot != nil {
		go bot.Run(runCtx)
		logger.Info("Telegram bot started",
			zap.Int64s("allowed_chat_ids", cfg.Telegram.AllowedChatIDs))

		if cfg.Reporting.IntervalMin > 0 {
			interval := time.Duration(cfg.Reporting.IntervalMin) * time.Minute
			sched := telegram.NewScheduler(reportSvc, bot, cfg.Reporting.TargetChatID, interval, logger)
			go sched.Run(runCtx)
			logger.Info("Consumption scheduler started", zap.Duration("interval", interval))
		}
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
