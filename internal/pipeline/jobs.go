package pipeline

import (
	"context"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// JobRunner executes job-run requests for the aggregation job.
type JobRunner struct {
	deps      Deps
	settings  Settings
	aggregate *AggregateStage
}

// NewJobRunner creates a JobRunner for settings.AggregationJob.
func NewJobRunner(deps Deps, settings Settings, aggregate *AggregateStage) *JobRunner {
	return &JobRunner{deps: deps, settings: settings, aggregate: aggregate}
}

// Handle runs the aggregation for a matching job-run message and skips
// requests for other jobs.
func (j *JobRunner) Handle(ctx context.Context, msg domain.Message) Result {
	run, err := domain.ParseJobRun(msg.Value)
	if err != nil {
		return j.deps.finish(j.deps.clock().Now(), failedPermanently(StageAggregate, err))
	}
	if run.JobName != j.settings.AggregationJob {
		return j.deps.finish(j.deps.clock().Now(), skipped(StageAggregate, "run %s is for job %q", run.RunID, run.JobName))
	}
	return j.aggregate.Run(ctx, run.RunID)
}
