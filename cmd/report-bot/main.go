// cmd/report-bot/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"trip-report-bot/internal/common/config"
	"trip-report-bot/internal/common/database"
	"trip-report-bot/internal/common/logger"
	"trip-report-bot/internal/common/observability"
	"trip-report-bot/internal/filter"
	"trip-report-bot/internal/nlu"
	"trip-report-bot/internal/report"
	"trip-report-bot/internal/retrieval"
	"trip-report-bot/internal/session"
	"trip-report-bot/internal/store"
	"trip-report-bot/internal/transport/telegram"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting trip report bot...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		zapLog.Fatal("invalid timezone", zap.String("timezone", cfg.App.Timezone), zap.Error(err))
	}

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry (optional) ---
	var cache nlu.Cache
	if cfg.Database.Redis.Enabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		cache = rdb
		zapLog.Info("Redis connected successfully")
	} else {
		zapLog.Info("Redis disabled, extraction cache off")
	}

	// --- Vocabulary & dialogue ---
	vocab, err := filter.NewVocabulary(cfg.Trips.Categories, cfg.Trips.Areas)
	if err != nil {
		zapLog.Fatal("vocabulary config invalid", zap.Error(err))
	}

	validator := filter.NewValidator(vocab, loc, nil, log)
	extractor := nlu.NewExtractor(cfg.NLU, vocab, cache, log)
	sessions := session.NewManager(extractor, validator, config.GetSeconds(cfg.Session.InactivityTimeout), log)

	// --- Connection pool & retrieval ---
	pool := store.NewPool(
		store.NewMongoDialer(cfg.Database.Mongo),
		config.GetSeconds(cfg.Pool.IdleTimeout),
		config.GetSeconds(cfg.Pool.ReapInterval),
		log,
	)
	pool.Start()

	tripStore := store.NewTripStore(pool, cfg.Database.Mongo, log)
	stations := store.NewStationDirectory(pg.DB, log)
	policy := retrieval.DefaultRetryPolicy(cfg.Retrieval.RetryAttempts, config.GetDuration(cfg.Retrieval.RetryBackoff))
	engine := retrieval.NewEngine(tripStore, stations, policy, cfg.Retrieval.MaxConcurrent, log)

	reports := report.NewGenerator(vocab, cfg.Report.OutputDir, log)

	// --- Session sweep schedule ---
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(
		fmt.Sprintf("@every %s", config.GetSeconds(cfg.Session.SweepInterval)),
		func() { sessions.SweepExpired() },
	); err != nil {
		zapLog.Fatal("sweep schedule invalid", zap.Error(err))
	}
	scheduler.Start()

	// --- Telegram front end ---
	svc := telegram.NewService(cfg.Telegram, sessions, engine, reports, obs, log)
	if err := svc.Start(ctx); err != nil {
		zapLog.Fatal("telegram start failed", zap.Error(err))
	}
	zapLog.Info("Telegram polling started")

	// --- Health & Metrics Server ---
	if cfg.Metrics.Enabled {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle("/metrics", promhttp.Handler())
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc.Stop()
	<-scheduler.Stop().Done()
	pool.Stop(shutdownCtx)

	zapLog.Info("Trip report bot stopped gracefully")
}
