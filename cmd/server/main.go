package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/database"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/logger"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/repository"
	"github.com/stemsi/exstem-engine/internal/router"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/timer"
	"github.com/stemsi/exstem-engine/internal/validator"
	"github.com/stemsi/exstem-engine/internal/worker"
)

const (
	startRateLimit   = 20
	startRateWindow  = time.Minute
	janitorInterval  = 5 * time.Minute
	resultCacheTTL   = 24 * time.Hour
	shutdownDeadline = 5 * time.Second
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("snapshot_backend", string(cfg.SnapshotBackend)).
		Msg("Starting ExStem attempt engine")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL and Redis ──────────────────────────────
	// The memory backend runs without either, for local development.
	var (
		pool *pgxpool.Pool
		rdb  *redis.Client
		err  error
	)
	if cfg.SnapshotBackend != config.SnapshotBackendMemory {
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	var (
		sets     handler.QuestionSetStore
		snaps    engine.SnapshotStore
		results  handler.ResultReader
		queue    *repository.RedisResultQueue
		checks   = map[string]handler.HealthCheck{}
		resultDB *repository.ResultRepository
	)
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendMemory:
		sets = repository.NewMemoryQuestionSetRepository()
		snaps = repository.NewMemorySnapshotStore()
	default:
		sets = repository.NewQuestionSetRepository(pool, rdb, cfg.QuestionSetTTL, log)
		resultDB = repository.NewResultRepository(pool)
		results = resultDB
		queue = repository.NewRedisResultQueue(rdb, resultCacheTTL)
		checks["postgres"] = pool.Ping
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		if cfg.SnapshotBackend == config.SnapshotBackendPostgres {
			snaps = repository.NewPostgresSnapshotStore(pool)
		} else {
			snaps = repository.NewRedisSnapshotStore(rdb, cfg.SnapshotTTL)
		}
	}

	// ─── Initialize Services ──────────────────────────────────────────
	tokens := service.NewTokenService(cfg, rdb)

	var listeners []engine.Listener
	var publisher *service.ResultPublisher
	if queue != nil {
		publisher = service.NewResultPublisher(queue, log)
		listeners = append(listeners, publisher)
	}

	attempts := service.NewAttemptService(sets, snaps, tokens, timer.NewScheduler(), engine.Config{
		QuestionTimeLimit: cfg.QuestionTimeLimit,
		AutosaveInterval:  cfg.AutosaveInterval,
		SaveTimeout:       cfg.SaveTimeout,
	}, log, listeners...)

	// ─── Initialize Handlers ──────────────────────────────────────────
	var depth handler.QueueDepth
	if queue != nil {
		depth = queue
	}
	handlers := &router.Handlers{
		Attempt:     handler.NewAttemptHandler(attempts, results, log),
		QuestionSet: handler.NewQuestionSetHandler(sets, log),
		WS:          handler.NewWSHandler(attempts, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(checks, attempts, depth, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	limiter := middleware.NewRateLimiter(startRateLimit, startRateWindow)
	go limiter.StartCleanup(workerCtx)
	go attempts.StartJanitor(workerCtx, janitorInterval)

	if queue != nil {
		resultWorker := worker.NewResultWorker(queue, resultDB, queue, log)
		go func() {
			resultWorker.Start(workerCtx)
			close(workersDone)
		}()
	} else {
		close(workersDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokens, limiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Pause live attempts so their final snapshots are written.
	attempts.Shutdown()

	// 3. Let queued results reach Redis, then drain the worker.
	if publisher != nil {
		publisher.Wait()
	}
	workerCancel()
	<-workersDone

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
