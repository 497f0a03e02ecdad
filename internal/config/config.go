package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaEventsTopic string
	KafkaJobsTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	// Alerting.
	AlertTopic     string
	AlertThreshold float64
	AlertTimeout   time.Duration
	AlertQueueSize int

	// Object store layout.
	StoreRoot          string
	RawBucket          string
	OutputBucket       string
	ValidKey           string
	InvalidKey         string
	AnalysisKey        string
	AnalysisTempPrefix string

	AggregationJob string

	// Keyed store.
	DatabaseURL string
	KeyedTable  string

	// Redis lock, disabled when RedisAddr is empty.
	RedisAddr string
	LockTTL   time.Duration

	ValidationWorkers int
	MaxDeliveries     int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	threshold, err := parseFloat("ALERT_THRESHOLD", "0.5")
	if err != nil {
		return nil, err
	}
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, errors.New("invalid ALERT_THRESHOLD: must be a non-negative number")
	}

	alertTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("ALERT_TIMEOUT", "5s"))
	if err != nil || alertTimeout <= 0 {
		return nil, errors.New("invalid ALERT_TIMEOUT")
	}
	alertQueue, err := parseInt("ALERT_QUEUE_SIZE", "1024")
	if err != nil {
		return nil, err
	}
	if alertQueue < 1 {
		return nil, fmt.Errorf("invalid ALERT_QUEUE_SIZE: %d must be at least 1", alertQueue)
	}

	lockTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("LOCK_TTL", "30s"))
	if err != nil || lockTTL <= 0 {
		return nil, errors.New("invalid LOCK_TTL")
	}

	workers, err := parseInt("VALIDATION_WORKERS", "8")
	if err != nil {
		return nil, err
	}
	if workers < 1 || workers > 256 {
		return nil, fmt.Errorf("invalid VALIDATION_WORKERS: %d not in [1, 256]", workers)
	}

	maxDeliveries, err := parseInt("MAX_DELIVERIES", "5")
	if err != nil {
		return nil, err
	}
	if maxDeliveries < 1 {
		return nil, fmt.Errorf("invalid MAX_DELIVERIES: %d must be at least 1", maxDeliveries)
	}

	cfg := &Config{
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic: sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "storage-events"),
		KafkaJobsTopic:   sharedcfg.EnvOrDefault("KAFKA_JOBS_TOPIC", "job-runs"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "sensor-temperature-etl"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,

		AlertTopic:     sharedcfg.EnvOrDefault("ALERT_TOPIC", "SD_LIMIT"),
		AlertThreshold: threshold,
		AlertTimeout:   alertTimeout,
		AlertQueueSize: alertQueue,

		StoreRoot:          sharedcfg.EnvOrDefault("STORE_ROOT", "./data"),
		RawBucket:          sharedcfg.EnvOrDefault("RAW_BUCKET", "landingzone"),
		OutputBucket:       sharedcfg.EnvOrDefault("OUTPUT_BUCKET", "summaryfiles"),
		ValidKey:           sharedcfg.EnvOrDefault("VALID_KEY", "filtered/validFiles.csv"),
		InvalidKey:         sharedcfg.EnvOrDefault("INVALID_KEY", "filtered/errorFiles.csv"),
		AnalysisKey:        sharedcfg.EnvOrDefault("ANALYSIS_KEY", "analysis/analizedfiles.csv"),
		AnalysisTempPrefix: sharedcfg.EnvOrDefault("ANALYSIS_TEMP_PREFIX", "analysis/temp/"),

		AggregationJob: sharedcfg.EnvOrDefault("AGGREGATION_JOB", "agregated_values"),

		DatabaseURL: sharedcfg.EnvOrDefault("DATABASE_URL", "postgres://localhost:5432/temperature?sslmode=disable"),
		KeyedTable:  sharedcfg.EnvOrDefault("KEYED_TABLE", "temperature_data"),

		RedisAddr: sharedcfg.EnvOrDefault("REDIS_ADDR", ""),
		LockTTL:   lockTTL,

		ValidationWorkers: workers,
		MaxDeliveries:     maxDeliveries,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required")
	}
	if cfg.KafkaJobsTopic == "" {
		return nil, errors.New("KAFKA_JOBS_TOPIC is required")
	}
	if cfg.AlertTopic == "" {
		return nil, errors.New("ALERT_TOPIC is required")
	}
	if cfg.RawBucket == cfg.OutputBucket {
		return nil, errors.New("RAW_BUCKET and OUTPUT_BUCKET must differ")
	}
	if cfg.AnalysisTempPrefix == "" || strings.HasPrefix(cfg.AnalysisKey, cfg.AnalysisTempPrefix) {
		return nil, errors.New("ANALYSIS_TEMP_PREFIX must be set and must not contain ANALYSIS_KEY")
	}

	return cfg, nil
}

func parseInt(name, def string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(sharedcfg.EnvOrDefault(name, def)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func parseFloat(name, def string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(sharedcfg.EnvOrDefault(name, def)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return f, nil
}
