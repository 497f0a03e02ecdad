package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// IngestStage validates a raw batch, alerts on high deviations, and merges
// the rows into the valid and invalid datasets.
type IngestStage struct {
	deps      Deps
	settings  Settings
	validator domain.Validator
	evaluator domain.AlertEvaluator
}

// NewIngestStage creates the ingest stage.
func NewIngestStage(deps Deps, settings Settings, validator domain.Validator, evaluator domain.AlertEvaluator) *IngestStage {
	return &IngestStage{deps: deps, settings: settings, validator: validator, evaluator: evaluator}
}

type ingestSummary struct {
	rows, valid, invalid int
	alerts, dropped      int
}

// Run ingests the raw batch named by ev.
func (s *IngestStage) Run(ctx context.Context, ev domain.ObjectEvent) Result {
	start := s.deps.clock().Now()
	sum, err := s.ingest(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrHeaderMismatch) {
			return s.deps.finish(start, failedPermanently(StageIngest, err))
		}
		return s.deps.finish(start, failed(StageIngest, err))
	}
	return s.deps.finish(start, succeeded(StageIngest,
		"ingested %d rows from %s: %d valid, %d invalid, %d alerts (%d dropped)",
		sum.rows, ev, sum.valid, sum.invalid, sum.alerts, sum.dropped))
}

func (s *IngestStage) ingest(ctx context.Context, ev domain.ObjectEvent) (ingestSummary, error) {
	data, err := s.deps.Store.Get(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return ingestSummary{}, fmt.Errorf("read batch %s: %w", ev, err)
	}
	rows, err := domain.ReadBatch(bytes.NewReader(data))
	if err != nil {
		return ingestSummary{}, fmt.Errorf("batch %s: %w", ev, err)
	}

	outcomes, alerts, dropped := s.validate(rows)

	sum := ingestSummary{rows: len(rows), alerts: alerts, dropped: dropped}
	valid := make([][]string, 0, len(outcomes))
	invalid := make([][]string, 0)
	for _, out := range outcomes {
		if out.Valid() {
			valid = append(valid, out.Record.Fields())
			continue
		}
		inv := out.Invalid()
		s.deps.Logger.Debug("row rejected", "bucket", ev.Bucket, "key", ev.Key, "line", inv.Line, "reason", inv.Reason)
		s.deps.Metrics.InvalidRows.WithLabelValues(string(inv.Reason)).Inc()
		invalid = append(invalid, inv.Fields)
	}
	sum.valid, sum.invalid = len(valid), len(invalid)
	s.deps.Metrics.RowsValidated.WithLabelValues("valid").Add(float64(sum.valid))
	s.deps.Metrics.RowsValidated.WithLabelValues("invalid").Add(float64(sum.invalid))

	// The two datasets are independent destinations.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.merge(gctx, s.settings.ValidKey, "valid", valid) })
	g.Go(func() error { return s.merge(gctx, s.settings.InvalidKey, "invalid", invalid) })
	return sum, g.Wait()
}

// validate classifies every row concurrently. Outcomes are index-aligned
// with rows. Alerts are handed to the alert sink from the worker that
// validated the row; delivery happens off the ingest path.
func (s *IngestStage) validate(rows []domain.RawRecord) (outcomes []domain.Outcome, alerts, dropped int) {
	now := s.deps.clock().Now()
	outcomes = make([]domain.Outcome, len(rows))
	queued := make([]alertState, len(rows))

	var g errgroup.Group
	g.SetLimit(max(s.settings.ValidationWorkers, 1))
	for i, row := range rows {
		g.Go(func() error {
			out := s.validator.Validate(row, now)
			outcomes[i] = out
			if out.Valid() {
				queued[i] = s.alert(out.Record)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, st := range queued {
		switch st {
		case alertQueued:
			alerts++
		case alertDropped:
			alerts++
			dropped++
		}
	}
	return outcomes, alerts, dropped
}

type alertState uint8

const (
	alertNone alertState = iota
	alertQueued
	alertDropped
)

// alert queues a deviation alert for rec if it needs one.
func (s *IngestStage) alert(rec domain.ValidatedRecord) alertState {
	a, ok := s.evaluator.Evaluate(rec)
	if !ok {
		return alertNone
	}
	if !s.deps.Alerts.Enqueue(a) {
		return alertDropped
	}
	return alertQueued
}

// merge upserts rows into the dataset at key while holding that dataset's
// writer lock. An absent dataset starts out as just the header.
func (s *IngestStage) merge(ctx context.Context, key, label string, rows [][]string) error {
	bucket := s.settings.OutputBucket
	unlock, err := s.deps.Locker.Lock(ctx, bucket+"/"+key)
	if err != nil {
		return fmt.Errorf("lock %s/%s: %w", bucket, key, err)
	}
	defer unlock()

	ds, err := loadDataset(ctx, s.deps.Store, bucket, key)
	if err != nil {
		return err
	}
	data, err := ds.Merge(rows).Bytes()
	if err != nil {
		return fmt.Errorf("encode %s dataset: %w", label, err)
	}
	if err := s.deps.Store.Put(ctx, bucket, key, data); err != nil {
		return fmt.Errorf("write %s dataset %s/%s: %w", label, bucket, key, err)
	}
	s.deps.Metrics.MergedRows.WithLabelValues(label).Add(float64(len(rows)))
	return nil
}

func loadDataset(ctx context.Context, store ObjectStore, bucket, key string) (*domain.Dataset, error) {
	data, err := store.Get(ctx, bucket, key)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return domain.NewDataset(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset %s/%s: %w", bucket, key, err)
	}
	ds, err := domain.ParseDataset(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("dataset %s/%s: %w", bucket, key, err)
	}
	return ds, nil
}
