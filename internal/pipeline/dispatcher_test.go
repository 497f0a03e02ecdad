package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
	"github.com/couchcryptid/sensor-temperature-etl/internal/pipeline"
)

func notification(t *testing.T, bucket, key string) domain.Message {
	t.Helper()
	data, err := domain.EncodeNotification(domain.ObjectEvent{Bucket: bucket, Key: key}, testNow)
	require.NoError(t, err)
	return domain.Message{Value: data}
}

func TestDispatcher_Routes(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		key    string
		stage  string
		status pipeline.Status
	}{
		{"raw batch", "landingzone", "2024/readings.csv", pipeline.StageIngest, pipeline.StatusOK},
		{"valid dataset", "summaryfiles", "filtered/validFiles.csv", pipeline.StageTrigger, pipeline.StatusOK},
		{"analysis export", "summaryfiles", "analysis/analizedfiles.csv", pipeline.StageExport, pipeline.StatusOK},
		{"invalid dataset", "summaryfiles", "filtered/errorFiles.csv", pipeline.StageDispatch, pipeline.StatusSkipped},
		{"export part", "summaryfiles", "analysis/temp/part-00000-x.csv", pipeline.StageDispatch, pipeline.StatusSkipped},
		{"other bucket", "elsewhere", "filtered/validFiles.csv", pipeline.StageDispatch, pipeline.StatusSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.store.put("landingzone", "2024/readings.csv", header+"2023/01/10,5,0.1\n")
			h.store.put("summaryfiles", "analysis/analizedfiles.csv", metricsHeader+"2023,1,5.0,5.0,0.1,0.0\n")

			r := h.dispatcher().Handle(context.Background(), notification(t, tt.bucket, tt.key))

			assert.Equal(t, tt.stage, r.Stage)
			assert.Equal(t, tt.status, r.Status, r.Message)
		})
	}
}

func TestDispatcher_TriggerStartsAggregationJob(t *testing.T) {
	h := newHarness()

	r := h.dispatcher().Handle(context.Background(), notification(t, "summaryfiles", "filtered/validFiles.csv"))

	require.False(t, r.Failed())
	assert.Equal(t, []string{"agregated_values"}, h.jobs.started)
	assert.Contains(t, r.Message, "run-1")
}

func TestDispatcher_DecodesKeys(t *testing.T) {
	h := newHarness()
	h.store.put("landingzone", "march readings.csv", header+"2023/03/10,5,0.1\n")

	msg := domain.Message{Value: []byte(`{"Records":[{"s3":{"bucket":{"name":"landingzone"},"object":{"key":"march+readings.csv"}}}]}`)}
	r := h.dispatcher().Handle(context.Background(), msg)

	require.Equal(t, pipeline.StatusOK, r.Status, r.Message)
	assert.Equal(t, header+"2023/03/10,5,0.1\n", h.valid(t))
}

func TestDispatcher_MultipleRecords(t *testing.T) {
	h := newHarness()
	h.store.put("landingzone", "a.csv", header+"2023/01/10,5,0.1\n")

	envelope := map[string]any{"Records": []any{
		s3Record("landingzone", "a.csv"),
		s3Record("summaryfiles", "filtered/errorFiles.csv"),
	}}
	data, err := json.Marshal(envelope)
	require.NoError(t, err)

	r := h.dispatcher().Handle(context.Background(), domain.Message{Value: data})

	require.Equal(t, pipeline.StatusOK, r.Status)
	assert.Equal(t, pipeline.StageDispatch, r.Stage)
	assert.Contains(t, r.Message, "ingest: ok")
}

func TestDispatcher_FailureStopsRemainingRecords(t *testing.T) {
	h := newHarness()
	h.jobs.err = assert.AnError

	envelope := map[string]any{"Records": []any{
		s3Record("summaryfiles", "filtered/validFiles.csv"),
		s3Record("landingzone", "never-read.csv"),
	}}
	data, err := json.Marshal(envelope)
	require.NoError(t, err)

	r := h.dispatcher().Handle(context.Background(), domain.Message{Value: data})

	require.True(t, r.Failed())
	assert.Equal(t, pipeline.StageTrigger, r.Stage)
	assert.True(t, r.Retryable())
}

func TestDispatcher_MalformedNotificationIsPermanent(t *testing.T) {
	h := newHarness()

	for _, body := range []string{`not json`, `{"Records":[]}`, `{"Records":[{"s3":{}}]}`} {
		r := h.dispatcher().Handle(context.Background(), domain.Message{Value: []byte(body)})
		require.True(t, r.Failed(), body)
		assert.False(t, r.Retryable(), body)
	}
}

func TestJobRunner(t *testing.T) {
	t.Run("runs the aggregation job", func(t *testing.T) {
		h := newHarness()
		h.store.put("summaryfiles", "filtered/validFiles.csv", header+"2023/01/10,5,0.1\n")
		runner := pipeline.NewJobRunner(h.deps, h.settings, h.aggregate())

		r := runner.Handle(context.Background(), jobMessage(t, "agregated_values", "run-9"))

		require.Equal(t, pipeline.StatusOK, r.Status, r.Message)
		assert.Contains(t, r.Message, "run-9")
		assert.True(t, h.store.has("summaryfiles", "analysis/analizedfiles.csv"))
	})

	t.Run("skips other jobs", func(t *testing.T) {
		h := newHarness()
		runner := pipeline.NewJobRunner(h.deps, h.settings, h.aggregate())

		r := runner.Handle(context.Background(), jobMessage(t, "compaction", "run-1"))

		assert.Equal(t, pipeline.StatusSkipped, r.Status)
	})

	t.Run("malformed request", func(t *testing.T) {
		h := newHarness()
		runner := pipeline.NewJobRunner(h.deps, h.settings, h.aggregate())

		r := runner.Handle(context.Background(), domain.Message{Value: []byte(`{"run_id":"x"}`)})

		require.True(t, r.Failed())
		assert.False(t, r.Retryable())
	})
}

func s3Record(bucket, key string) map[string]any {
	return map[string]any{"s3": map[string]any{
		"bucket": map[string]any{"name": bucket},
		"object": map[string]any{"key": key},
	}}
}

func jobMessage(t *testing.T, job, runID string) domain.Message {
	t.Helper()
	data, err := json.Marshal(domain.JobRun{JobName: job, RunID: runID, RequestedAt: time.Now()})
	require.NoError(t, err)
	return domain.Message{Value: data}
}
