package pipeline

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sensor-temperature-etl/internal/config"
	"github.com/couchcryptid/sensor-temperature-etl/internal/observability"
)

// Stage names used in results, logs, and metric labels.
const (
	StageDispatch  = "dispatch"
	StageIngest    = "ingest"
	StageTrigger   = "trigger"
	StageAggregate = "aggregate"
	StageExport    = "export"
)

// Settings is the storage layout and naming shared by the stages.
type Settings struct {
	RawBucket          string
	OutputBucket       string
	ValidKey           string
	InvalidKey         string
	AnalysisKey        string
	AnalysisTempPrefix string
	AlertTopic         string
	AggregationJob     string
	KeyedTable         string
	ValidationWorkers  int
}

// SettingsFromConfig copies the stage settings out of the service config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		RawBucket:          cfg.RawBucket,
		OutputBucket:       cfg.OutputBucket,
		ValidKey:           cfg.ValidKey,
		InvalidKey:         cfg.InvalidKey,
		AnalysisKey:        cfg.AnalysisKey,
		AnalysisTempPrefix: cfg.AnalysisTempPrefix,
		AlertTopic:         cfg.AlertTopic,
		AggregationJob:     cfg.AggregationJob,
		KeyedTable:         cfg.KeyedTable,
		ValidationWorkers:  cfg.ValidationWorkers,
	}
}

// Deps are the collaborators the stages run against. A stage only uses the
// ones it needs.
type Deps struct {
	Store    ObjectStore
	Alerts   AlertSink
	Jobs     JobTrigger
	Keyed    KeyedStore
	Locker   Locker
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

func (d Deps) clock() clockwork.Clock {
	if d.Clock == nil {
		return clockwork.NewRealClock()
	}
	return d.Clock
}

// finish records the outcome of one stage invocation.
func (d Deps) finish(start time.Time, r Result) Result {
	d.Metrics.StageRuns.WithLabelValues(r.Stage, string(r.Status)).Inc()
	d.Metrics.StageDuration.WithLabelValues(r.Stage).Observe(d.clock().Since(start).Seconds())

	switch r.Status {
	case StatusError:
		d.Logger.Error("stage failed", "stage", r.Stage, "error", r.Err)
	case StatusSkipped:
		d.Logger.Debug("stage skipped", "stage", r.Stage, "message", r.Message)
	default:
		d.Logger.Info("stage completed", "stage", r.Stage, "message", r.Message)
	}
	return r
}
