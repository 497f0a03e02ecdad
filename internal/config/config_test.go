package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "storage-events", cfg.KafkaEventsTopic)
	assert.Equal(t, "job-runs", cfg.KafkaJobsTopic)
	assert.Equal(t, "sensor-temperature-etl", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, "SD_LIMIT", cfg.AlertTopic)
	assert.InDelta(t, 0.5, cfg.AlertThreshold, 1e-12)
	assert.Equal(t, 5*time.Second, cfg.AlertTimeout)
	assert.Equal(t, 1024, cfg.AlertQueueSize)

	assert.Equal(t, "./data", cfg.StoreRoot)
	assert.Equal(t, "landingzone", cfg.RawBucket)
	assert.Equal(t, "summaryfiles", cfg.OutputBucket)
	assert.Equal(t, "filtered/validFiles.csv", cfg.ValidKey)
	assert.Equal(t, "filtered/errorFiles.csv", cfg.InvalidKey)
	assert.Equal(t, "analysis/analizedfiles.csv", cfg.AnalysisKey)
	assert.Equal(t, "analysis/temp/", cfg.AnalysisTempPrefix)
	assert.Equal(t, "agregated_values", cfg.AggregationJob)

	assert.Equal(t, "temperature_data", cfg.KeyedTable)
	assert.Contains(t, cfg.DatabaseURL, "postgres://")
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 8, cfg.ValidationWorkers)
	assert.Equal(t, 5, cfg.MaxDeliveries)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "custom-events")
	t.Setenv("KAFKA_JOBS_TOPIC", "custom-jobs")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("ALERT_TOPIC", "ALERTS")
	t.Setenv("ALERT_THRESHOLD", "1.25")
	t.Setenv("ALERT_TIMEOUT", "250ms")
	t.Setenv("ALERT_QUEUE_SIZE", "16")
	t.Setenv("STORE_ROOT", "/var/lib/etl")
	t.Setenv("RAW_BUCKET", "raw")
	t.Setenv("OUTPUT_BUCKET", "out")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOCK_TTL", "5s")
	t.Setenv("VALIDATION_WORKERS", "2")
	t.Setenv("MAX_DELIVERIES", "1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-events", cfg.KafkaEventsTopic)
	assert.Equal(t, "custom-jobs", cfg.KafkaJobsTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "ALERTS", cfg.AlertTopic)
	assert.InDelta(t, 1.25, cfg.AlertThreshold, 1e-12)
	assert.Equal(t, 250*time.Millisecond, cfg.AlertTimeout)
	assert.Equal(t, 16, cfg.AlertQueueSize)
	assert.Equal(t, "/var/lib/etl", cfg.StoreRoot)
	assert.Equal(t, "raw", cfg.RawBucket)
	assert.Equal(t, "out", cfg.OutputBucket)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, 2, cfg.ValidationWorkers)
	assert.Equal(t, 1, cfg.MaxDeliveries)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, env, value, want string
	}{
		{"threshold not a number", "ALERT_THRESHOLD", "high", "ALERT_THRESHOLD"},
		{"negative threshold", "ALERT_THRESHOLD", "-0.1", "ALERT_THRESHOLD"},
		{"NaN threshold", "ALERT_THRESHOLD", "NaN", "ALERT_THRESHOLD"},
		{"zero alert timeout", "ALERT_TIMEOUT", "0s", "ALERT_TIMEOUT"},
		{"empty alert queue", "ALERT_QUEUE_SIZE", "0", "ALERT_QUEUE_SIZE"},
		{"bad lock ttl", "LOCK_TTL", "soon", "LOCK_TTL"},
		{"zero lock ttl", "LOCK_TTL", "0s", "LOCK_TTL"},
		{"zero workers", "VALIDATION_WORKERS", "0", "VALIDATION_WORKERS"},
		{"too many workers", "VALIDATION_WORKERS", "257", "VALIDATION_WORKERS"},
		{"workers not a number", "VALIDATION_WORKERS", "many", "VALIDATION_WORKERS"},
		{"zero deliveries", "MAX_DELIVERIES", "0", "MAX_DELIVERIES"},
		{"same buckets", "OUTPUT_BUCKET", "landingzone", "RAW_BUCKET"},
		{"analysis key under temp prefix", "ANALYSIS_KEY", "analysis/temp/final.csv", "ANALYSIS_TEMP_PREFIX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
