package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "temperature_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL stages.
type Metrics struct {
	MessagesConsumed    *prometheus.CounterVec // labels: source={events,jobs}
	MessageRedeliveries *prometheus.CounterVec // labels: source
	MessagesAbandoned   *prometheus.CounterVec // labels: source
	ProcessorRunning    *prometheus.GaugeVec   // labels: source

	// Stage metrics.
	StageRuns     *prometheus.CounterVec   // labels: stage, status={ok,skipped,error}
	StageDuration *prometheus.HistogramVec // labels: stage

	// Ingestion metrics.
	RowsValidated *prometheus.CounterVec // labels: outcome={valid,invalid}
	InvalidRows   *prometheus.CounterVec // labels: reason
	Alerts        *prometheus.CounterVec // labels: outcome={published,error,dropped}
	MergedRows    *prometheus.CounterVec // labels: dataset={valid,invalid}

	// Aggregation and export metrics.
	MonthlyGroups    prometheus.Gauge
	SkippedRows      *prometheus.CounterVec // labels: stage
	KeyedStoreWrites prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessageRedeliveries,
		m.MessagesAbandoned,
		m.ProcessorRunning,
		m.StageRuns,
		m.StageDuration,
		m.RowsValidated,
		m.InvalidRows,
		m.Alerts,
		m.MergedRows,
		m.MonthlyGroups,
		m.SkippedRows,
		m.KeyedStoreWrites,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from a source topic.",
		}, []string{"source"}),
		MessageRedeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_redeliveries_total",
			Help:      "Messages handed to their handler again after a failed invocation.",
		}, []string{"source"}),
		MessagesAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_abandoned_total",
			Help:      "Messages committed without success after exhausting deliveries.",
		}, []string{"source"}),
		ProcessorRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processor_running",
			Help:      "1 when the message processor is active, 0 when shut down.",
		}, []string{"source"}),
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage invocations by stage and status.",
		}, []string{"stage", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a stage invocation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		RowsValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_validated_total",
			Help:      "Raw rows validated by outcome.",
		}, []string{"outcome"}),
		InvalidRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_rows_total",
			Help:      "Rejected rows by failure reason.",
		}, []string{"reason"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Deviation alerts by publish outcome.",
		}, []string{"outcome"}),
		MergedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_rows_total",
			Help:      "Rows upserted into a dataset.",
		}, []string{"dataset"}),
		MonthlyGroups: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monthly_groups",
			Help:      "Months in the most recent aggregation export.",
		}),
		SkippedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_rows_total",
			Help:      "Stored rows skipped because they did not parse.",
		}, []string{"stage"}),
		KeyedStoreWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyed_store_writes_total",
			Help:      "Monthly metrics written to the keyed store.",
		}),
	}
}
