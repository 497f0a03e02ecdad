package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// ExportStage loads the consolidated monthly metrics into the keyed store.
type ExportStage struct {
	deps     Deps
	settings Settings
}

// NewExportStage creates the export stage.
func NewExportStage(deps Deps, settings Settings) *ExportStage {
	return &ExportStage{deps: deps, settings: settings}
}

// Run writes every parsable row of the export named by ev. The first write
// failure aborts the run; rows already written stay written and are
// overwritten on redelivery.
func (s *ExportStage) Run(ctx context.Context, ev domain.ObjectEvent) Result {
	start := s.deps.clock().Now()

	data, err := s.deps.Store.Get(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return s.deps.finish(start, failed(StageExport, fmt.Errorf("read export %s: %w", ev, err)))
	}

	metrics, rowErrs, err := domain.DecodeMetrics(bytes.NewReader(data))
	if errors.Is(err, domain.ErrMetricsHeader) {
		return s.deps.finish(start, failedPermanently(StageExport, fmt.Errorf("export %s: %w", ev, err)))
	}
	if err != nil {
		return s.deps.finish(start, failed(StageExport, fmt.Errorf("export %s: %w", ev, err)))
	}
	for _, rowErr := range rowErrs {
		s.deps.Logger.Warn("skipping export row", "stage", StageExport, "bucket", ev.Bucket, "key", ev.Key, "error", rowErr)
	}
	s.deps.Metrics.SkippedRows.WithLabelValues(StageExport).Add(float64(len(rowErrs)))

	for _, m := range metrics {
		if err := s.deps.Keyed.PutMetric(ctx, s.settings.KeyedTable, m); err != nil {
			return s.deps.finish(start, failed(StageExport,
				fmt.Errorf("write %d/%d to %s: %w", m.Year, m.Month, s.settings.KeyedTable, err)))
		}
		s.deps.Metrics.KeyedStoreWrites.Inc()
	}

	return s.deps.finish(start, succeeded(StageExport, "wrote %d months to %s (%d rows skipped)",
		len(metrics), s.settings.KeyedTable, len(rowErrs)))
}
