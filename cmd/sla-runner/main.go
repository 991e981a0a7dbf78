// cmd/sla-runner/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"search-platform/internal/common/config"
	"search-platform/internal/common/database"
	"search-platform/internal/common/logger"
	"search-platform/internal/common/observability"
	"search-platform/internal/search/backend"
	"search-platform/internal/sla/alarm"
	"search-platform/internal/sla/deadletter"
	"search-platform/internal/sla/locks"
	"search-platform/internal/sla/processor"
	"search-platform/internal/sla/queue"
	"search-platform/internal/sla/ratelimit"
	"search-platform/internal/sla/retry"
	"search-platform/internal/sla/scheduler"
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
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sla runner...")

	obs := observability.New("sla-runner")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

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

	provider := config.NewProvider(cfg)
	be := backend.NewElastic(esClient.Client, log)

	router := queue.NewRouter(redis.Client,
		cfg.SLA.Queue.NormalKeyTemplate,
		cfg.SLA.Queue.RetryKeyTemplate,
		cfg.SLA.Queue.DeadLetterKey,
		cfg.SLA.Queue.PendingSetKey,
		log,
	)
	limiter := ratelimit.New(log)
	lockStore := locks.NewStore(redis.Client, "sla:lock:", log)
	archive := deadletter.NewArchive(pg.DB, log)
	notifier := alarm.FromConfig(ctx, cfg.Integrations.AWS, log)
	engine := retry.NewEngine(provider, router, archive, notifier, log)
	indexer := processor.NewIndexer(provider, be, log)

	sched := scheduler.New(provider, router, limiter, lockStore, engine, indexer.Process, log)
	sched.Start(ctx)

	// Metrics and pprof endpoint.
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping scheduler...")
	sched.Stop()
	zapLog.Info("SLA runner stopped")
}
