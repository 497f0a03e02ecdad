package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// TriggerStage starts the aggregation job after the valid dataset changes.
// It does not wait for the run.
type TriggerStage struct {
	deps     Deps
	settings Settings
}

// NewTriggerStage creates the trigger stage.
func NewTriggerStage(deps Deps, settings Settings) *TriggerStage {
	return &TriggerStage{deps: deps, settings: settings}
}

// Run starts one aggregation run for the dataset update ev.
func (s *TriggerStage) Run(ctx context.Context, ev domain.ObjectEvent) Result {
	start := s.deps.clock().Now()
	runID, err := s.deps.Jobs.Start(ctx, s.settings.AggregationJob)
	if err != nil {
		return s.deps.finish(start, failed(StageTrigger, fmt.Errorf("start job %s: %w", s.settings.AggregationJob, err)))
	}
	s.deps.Logger.Info("aggregation job started", "job", s.settings.AggregationJob, "run_id", runID, "bucket", ev.Bucket, "key", ev.Key)
	return s.deps.finish(start, succeeded(StageTrigger, "started job %s run %s", s.settings.AggregationJob, runID))
}
