package pipeline

import (
	"context"
	"strings"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// Dispatcher routes object-created notifications to the stage that owns
// the object:
//
//	RAW_BUCKET/*                -> ingest
//	OUTPUT_BUCKET/VALID_KEY     -> trigger the aggregation job
//	OUTPUT_BUCKET/ANALYSIS_KEY  -> export to the keyed store
//
// Anything else is skipped.
type Dispatcher struct {
	deps     Deps
	settings Settings
	ingest   *IngestStage
	trigger  *TriggerStage
	export   *ExportStage
}

// NewDispatcher creates a Dispatcher over the given stages.
func NewDispatcher(deps Deps, settings Settings, ingest *IngestStage, trigger *TriggerStage, export *ExportStage) *Dispatcher {
	return &Dispatcher{deps: deps, settings: settings, ingest: ingest, trigger: trigger, export: export}
}

// Handle dispatches every record of the notification in msg. The combined
// result is the first failure, or ok when any record ran a stage.
func (d *Dispatcher) Handle(ctx context.Context, msg domain.Message) Result {
	events, err := domain.ParseNotification(msg.Value)
	if err != nil {
		return d.deps.finish(d.deps.clock().Now(), failedPermanently(StageDispatch, err))
	}

	results := make([]Result, 0, len(events))
	for _, ev := range events {
		r := d.Route(ctx, ev)
		if r.Failed() {
			return r
		}
		results = append(results, r)
	}
	return combine(results)
}

// Route runs the stage for a single event.
func (d *Dispatcher) Route(ctx context.Context, ev domain.ObjectEvent) Result {
	switch {
	case ev.Bucket == d.settings.RawBucket:
		return d.ingest.Run(ctx, ev)
	case ev.Bucket == d.settings.OutputBucket && ev.Key == d.settings.ValidKey:
		return d.trigger.Run(ctx, ev)
	case ev.Bucket == d.settings.OutputBucket && ev.Key == d.settings.AnalysisKey:
		return d.export.Run(ctx, ev)
	default:
		return d.deps.finish(d.deps.clock().Now(), skipped(StageDispatch, "no stage for %s", ev))
	}
}

func combine(results []Result) Result {
	if len(results) == 1 {
		return results[0]
	}
	var ran []string
	for _, r := range results {
		if r.Status == StatusOK {
			ran = append(ran, r.String())
		}
	}
	if len(ran) == 0 {
		return skipped(StageDispatch, "no stage for any of %d records", len(results))
	}
	return succeeded(StageDispatch, "%s", strings.Join(ran, "; "))
}
