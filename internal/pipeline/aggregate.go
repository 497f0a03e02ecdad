package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// AggregateStage recomputes the monthly metrics from the whole valid dataset
// and replaces the consolidated export.
type AggregateStage struct {
	deps     Deps
	settings Settings
}

// NewAggregateStage creates the aggregate stage.
func NewAggregateStage(deps Deps, settings Settings) *AggregateStage {
	return &AggregateStage{deps: deps, settings: settings}
}

// Run performs one aggregation run. An empty runID gets a generated one.
// The export lock is held from reading the valid dataset until the export is
// replaced, so runs publish in the order they read.
func (s *AggregateStage) Run(ctx context.Context, runID string) Result {
	start := s.deps.clock().Now()
	if runID == "" {
		runID = uuid.NewString()
	}

	bucket := s.settings.OutputBucket
	unlock, err := s.deps.Locker.Lock(ctx, bucket+"/"+s.settings.AnalysisKey)
	if err != nil {
		return s.deps.finish(start, failed(StageAggregate, fmt.Errorf("run %s: lock %s/%s: %w", runID, bucket, s.settings.AnalysisKey, err)))
	}
	defer unlock()

	data, err := s.deps.Store.Get(ctx, bucket, s.settings.ValidKey)
	if errors.Is(err, domain.ErrObjectNotFound) {
		return s.deps.finish(start, skipped(StageAggregate, "run %s: no valid dataset at %s/%s", runID, bucket, s.settings.ValidKey))
	}
	if err != nil {
		return s.deps.finish(start, failed(StageAggregate, fmt.Errorf("read valid dataset: %w", err)))
	}

	ds, err := domain.ParseDataset(bytes.NewReader(data))
	if err != nil {
		return s.deps.finish(start, failed(StageAggregate, err))
	}
	records, rowErrs := ds.Records()
	for _, rowErr := range rowErrs {
		s.deps.Logger.Warn("skipping stored row", "stage", StageAggregate, "run_id", runID, "error", rowErr)
	}
	s.deps.Metrics.SkippedRows.WithLabelValues(StageAggregate).Add(float64(len(rowErrs)))

	metrics := domain.AddSequentialDiff(domain.Aggregate(records))
	out, err := domain.EncodeMetrics(metrics)
	if err != nil {
		return s.deps.finish(start, failed(StageAggregate, err))
	}

	if err := s.publish(ctx, runID, out); err != nil {
		return s.deps.finish(start, failed(StageAggregate, fmt.Errorf("run %s: %w", runID, err)))
	}
	s.deps.Metrics.MonthlyGroups.Set(float64(len(metrics)))
	return s.deps.finish(start, succeeded(StageAggregate,
		"run %s: %d months from %d readings (%d skipped) written to %s/%s",
		runID, len(metrics), len(records), len(rowErrs), bucket, s.settings.AnalysisKey))
}

// publish writes the export as a part file under the staging prefix, then
// copies every part onto the consolidated key and removes the parts. The
// consolidated key only ever changes by a whole-object copy. The caller holds
// the export lock.
func (s *AggregateStage) publish(ctx context.Context, runID string, data []byte) error {
	bucket := s.settings.OutputBucket
	prefix := s.settings.AnalysisTempPrefix

	// Parts left behind by an interrupted run would otherwise be copied too.
	stale, err := s.parts(ctx)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		s.deps.Logger.Warn("removing stale export parts", "run_id", runID, "parts", stale)
	}
	if err := s.deleteAll(ctx, stale); err != nil {
		return err
	}

	partKey := prefix + "part-00000-" + runID + ".csv"
	if err := s.deps.Store.Put(ctx, bucket, partKey, data); err != nil {
		return fmt.Errorf("write part %s: %w", partKey, err)
	}

	parts, err := s.parts(ctx)
	if err != nil {
		return err
	}
	for _, key := range parts {
		if err := s.deps.Store.Copy(ctx, bucket, key, s.settings.AnalysisKey); err != nil {
			return fmt.Errorf("copy %s to %s: %w", key, s.settings.AnalysisKey, err)
		}
	}
	return s.deleteAll(ctx, parts)
}

func (s *AggregateStage) parts(ctx context.Context) ([]string, error) {
	keys, err := s.deps.Store.List(ctx, s.settings.OutputBucket, s.settings.AnalysisTempPrefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.settings.AnalysisTempPrefix, err)
	}
	parts := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".csv") {
			parts = append(parts, k)
		}
	}
	return parts, nil
}

func (s *AggregateStage) deleteAll(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.deps.Store.Delete(ctx, s.settings.OutputBucket, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
