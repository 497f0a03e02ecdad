package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/sensor-temperature-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sensor-temperature-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sensor-temperature-etl/internal/adapter/objectstore"
	"github.com/couchcryptid/sensor-temperature-etl/internal/adapter/postgres"
	"github.com/couchcryptid/sensor-temperature-etl/internal/adapter/redislock"
	"github.com/couchcryptid/sensor-temperature-etl/internal/config"
	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
	"github.com/couchcryptid/sensor-temperature-etl/internal/lock"
	"github.com/couchcryptid/sensor-temperature-etl/internal/observability"
	"github.com/couchcryptid/sensor-temperature-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fsStore, err := objectstore.NewFS(cfg.StoreRoot, logger)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(1)
	}

	keyed, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("keyed store init failed", "error", err)
		os.Exit(1)
	}
	if err := keyed.EnsureTable(ctx, cfg.KeyedTable); err != nil {
		logger.Error("keyed store init failed", "error", err)
		os.Exit(1)
	}

	writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, logger)
	store := objectstore.NewNotifying(fsStore, kafkaadapter.NewEventEmitter(writer, cfg.KafkaEventsTopic))

	checkers := []httpadapter.ReadinessChecker{keyed}

	// Redis lease when configured, otherwise one writer per destination in this process.
	var locker pipeline.Locker = lock.NewMemory()
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rl := redislock.New(redisClient, cfg.LockTTL, logger)
		locker = rl
		checkers = append(checkers, rl)
		logger.Info("redis lock enabled", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	} else {
		logger.Info("redis lock disabled, using in-process lock")
	}

	alerts := pipeline.NewAlertPublisher(writer, cfg.AlertTopic, cfg.AlertQueueSize, cfg.AlertTimeout, logger, metrics)

	deps := pipeline.Deps{
		Store:   store,
		Alerts:  alerts,
		Jobs:    kafkaadapter.NewJobTrigger(writer, cfg.KafkaJobsTopic),
		Keyed:   keyed,
		Locker:  locker,
		Clock:   clockwork.NewRealClock(),
		Logger:  logger,
		Metrics: metrics,
	}
	settings := pipeline.SettingsFromConfig(cfg)

	evaluator := domain.AlertEvaluator{Threshold: cfg.AlertThreshold}
	dispatcher := pipeline.NewDispatcher(deps, settings,
		pipeline.NewIngestStage(deps, settings, domain.NewValidator(), evaluator),
		pipeline.NewTriggerStage(deps, settings),
		pipeline.NewExportStage(deps, settings),
	)
	runner := pipeline.NewJobRunner(deps, settings, pipeline.NewAggregateStage(deps, settings))

	eventsReader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.KafkaGroupID, logger)
	jobsReader := kafkaadapter.NewReader(cfg.KafkaBrokers, cfg.KafkaJobsTopic, cfg.KafkaGroupID, logger)

	events := pipeline.NewProcessor("events", eventsReader, dispatcher, cfg.MaxDeliveries, logger, metrics)
	jobs := pipeline.NewProcessor("jobs", jobsReader, runner, cfg.MaxDeliveries, logger, metrics)
	checkers = append(checkers, events, jobs)

	srv := httpadapter.NewServer(cfg.HTTPAddr, logger, checkers...)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start processors.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return events.Run(gctx) })
	g.Go(func() error { return jobs.Run(gctx) })

	<-ctx.Done()
	logger.Info("shutting down")
	if err := g.Wait(); err != nil {
		logger.Error("processor error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := eventsReader.Close(); err != nil {
		logger.Error("kafka reader close error", "topic", cfg.KafkaEventsTopic, "error", err)
	}
	if err := jobsReader.Close(); err != nil {
		logger.Error("kafka reader close error", "topic", cfg.KafkaJobsTopic, "error", err)
	}
	if err := alerts.Close(shutdownCtx); err != nil {
		logger.Error("alert publisher close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := keyed.Close(); err != nil {
		logger.Error("postgres close error", "error", err)
	}

	logger.Info("shutdown complete")
}
