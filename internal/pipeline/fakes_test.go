package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
	"github.com/couchcryptid/sensor-temperature-etl/internal/lock"
	"github.com/couchcryptid/sensor-temperature-etl/internal/observability"
	"github.com/couchcryptid/sensor-temperature-etl/internal/pipeline"
)

var testNow = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

const header = "Fecha,Medias,Desviaciones\n"

// --- object store ---

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []string

	failGet  map[string]error
	failPut  map[string]error
	failCopy error
}

func newMemStore() *memStore {
	return &memStore{
		objects: make(map[string][]byte),
		failGet: make(map[string]error),
		failPut: make(map[string]error),
	}
}

func path(bucket, key string) string { return bucket + "/" + key }

func (s *memStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failGet[path(bucket, key)]; err != nil {
		return nil, err
	}
	data, ok := s.objects[path(bucket, key)]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return slices.Clone(data), nil
}

func (s *memStore) Put(_ context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failPut[path(bucket, key)]; err != nil {
		return err
	}
	s.objects[path(bucket, key)] = slices.Clone(data)
	s.puts = append(s.puts, path(bucket, key))
	return nil
}

func (s *memStore) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCopy != nil {
		return s.failCopy
	}
	data, ok := s.objects[path(bucket, srcKey)]
	if !ok {
		return domain.ErrObjectNotFound
	}
	s.objects[path(bucket, dstKey)] = slices.Clone(data)
	return nil
}

func (s *memStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path(bucket, key))
	return nil
}

func (s *memStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for p := range s.objects {
		key, ok := strings.CutPrefix(p, bucket+"/")
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *memStore) put(bucket, key, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path(bucket, key)] = []byte(data)
}

func (s *memStore) object(t *testing.T, bucket, key string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path(bucket, key)]
	if !ok {
		t.Fatalf("object %s/%s not found", bucket, key)
	}
	return string(data)
}

func (s *memStore) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path(bucket, key)]
	return ok
}

// --- notifier ---

type recordingNotifier struct {
	mu     sync.Mutex
	topics []string
	alerts []domain.Alert
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, topic string, alert domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
	n.alerts = append(n.alerts, alert)
	return n.err
}

// hangingNotifier blocks every publish until its context is done.
type hangingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *hangingNotifier) Publish(ctx context.Context, _ string, _ domain.Alert) error {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (n *hangingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// --- job trigger ---

type fakeJobs struct {
	mu      sync.Mutex
	started []string
	err     error
}

func (j *fakeJobs) Start(_ context.Context, jobName string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return "", j.err
	}
	j.started = append(j.started, jobName)
	return "run-1", nil
}

// --- keyed store ---

type memKeyed struct {
	mu     sync.Mutex
	tables map[string]map[domain.MonthKey]domain.MonthlyMetric
	writes int
	failAt int // 1-based write that fails; 0 never fails
}

var errKeyedWrite = errors.New("keyed store unavailable")

func (k *memKeyed) PutMetric(_ context.Context, table string, m domain.MonthlyMetric) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.writes++
	if k.failAt != 0 && k.writes == k.failAt {
		return errKeyedWrite
	}
	if k.tables == nil {
		k.tables = make(map[string]map[domain.MonthKey]domain.MonthlyMetric)
	}
	if k.tables[table] == nil {
		k.tables[table] = make(map[domain.MonthKey]domain.MonthlyMetric)
	}
	k.tables[table][domain.MonthKey{Year: m.Year, Month: m.Month}] = m
	return nil
}

// --- wiring ---

func testSettings() pipeline.Settings {
	return pipeline.Settings{
		RawBucket:          "landingzone",
		OutputBucket:       "summaryfiles",
		ValidKey:           "filtered/validFiles.csv",
		InvalidKey:         "filtered/errorFiles.csv",
		AnalysisKey:        "analysis/analizedfiles.csv",
		AnalysisTempPrefix: "analysis/temp/",
		AlertTopic:         "SD_LIMIT",
		AggregationJob:     "agregated_values",
		KeyedTable:         "temperature_data",
		ValidationWorkers:  4,
	}
}

type harness struct {
	store    *memStore
	notifier *recordingNotifier
	alerts   *pipeline.AlertPublisher
	jobs     *fakeJobs
	keyed    *memKeyed
	deps     pipeline.Deps
	settings pipeline.Settings
}

func newHarness() *harness {
	h := &harness{
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		jobs:     &fakeJobs{},
		keyed:    &memKeyed{},
		settings: testSettings(),
	}
	metrics := observability.NewMetricsForTesting()
	h.alerts = pipeline.NewAlertPublisher(h.notifier, h.settings.AlertTopic, 64, time.Second, discardLogger(), metrics)
	h.deps = pipeline.Deps{
		Store:   h.store,
		Alerts:  h.alerts,
		Jobs:    h.jobs,
		Keyed:   h.keyed,
		Locker:  lock.NewMemory(),
		Clock:   clockwork.NewFakeClockAt(testNow),
		Logger:  discardLogger(),
		Metrics: metrics,
	}
	return h
}

// flushAlerts waits for every queued alert to reach the notifier. The
// harness accepts no alerts afterwards.
func (h *harness) flushAlerts(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.alerts.Close(ctx); err != nil {
		t.Fatalf("flush alerts: %v", err)
	}
}

func (h *harness) ingest() *pipeline.IngestStage {
	return pipeline.NewIngestStage(h.deps, h.settings, domain.NewValidator(), domain.NewAlertEvaluator())
}

func (h *harness) aggregate() *pipeline.AggregateStage {
	return pipeline.NewAggregateStage(h.deps, h.settings)
}

func (h *harness) export() *pipeline.ExportStage {
	return pipeline.NewExportStage(h.deps, h.settings)
}

func (h *harness) dispatcher() *pipeline.Dispatcher {
	return pipeline.NewDispatcher(h.deps, h.settings, h.ingest(), pipeline.NewTriggerStage(h.deps, h.settings), h.export())
}

func (h *harness) raw(key string) domain.ObjectEvent {
	return domain.ObjectEvent{Bucket: h.settings.RawBucket, Key: key}
}

func (h *harness) valid(t *testing.T) string {
	t.Helper()
	return h.store.object(t, h.settings.OutputBucket, h.settings.ValidKey)
}

func (h *harness) invalid(t *testing.T) string {
	t.Helper()
	return h.store.object(t, h.settings.OutputBucket, h.settings.InvalidKey)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
