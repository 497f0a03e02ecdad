package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
	"github.com/couchcryptid/sensor-temperature-etl/internal/observability"
)

// AlertSink accepts alerts for delivery without waiting for it.
type AlertSink interface {
	Enqueue(alert domain.Alert) bool
}

// AlertPublisher delivers alerts to a Notifier from a bounded queue on its
// own goroutine. Each delivery gets its own timeout and never runs on a
// caller's context, so a slow or failing channel cannot hold up ingestion.
// When the queue is full new alerts are dropped and counted.
// It implements AlertSink.
type AlertPublisher struct {
	notifier Notifier
	topic    string
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Alert
	done   chan struct{}
}

// NewAlertPublisher starts a publisher delivering to topic. queueSize bounds
// the number of undelivered alerts; timeout bounds each delivery.
func NewAlertPublisher(notifier Notifier, topic string, queueSize int, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *AlertPublisher {
	p := &AlertPublisher{
		notifier: notifier,
		topic:    topic,
		timeout:  timeout,
		logger:   logger.With("topic", topic),
		metrics:  metrics,
		queue:    make(chan domain.Alert, max(queueSize, 1)),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue queues alert for delivery. It never blocks and reports false when
// the alert was dropped.
func (p *AlertPublisher) Enqueue(alert domain.Alert) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(alert, "publisher closed")
		return false
	}
	select {
	case p.queue <- alert:
		return true
	default:
		p.drop(alert, "queue full")
		return false
	}
}

// Close stops accepting alerts and waits until the queued ones are delivered
// or ctx is done. It is safe to call more than once.
func (p *AlertPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AlertPublisher) run() {
	defer close(p.done)
	for alert := range p.queue {
		p.deliver(alert)
	}
}

func (p *AlertPublisher) deliver(alert domain.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.notifier.Publish(ctx, p.topic, alert); err != nil {
		p.logger.Warn("alert publish failed", "date", alert.Date, "std_dev", alert.StdDev, "error", err)
		p.metrics.Alerts.WithLabelValues("error").Inc()
		return
	}
	p.metrics.Alerts.WithLabelValues("published").Inc()
}

func (p *AlertPublisher) drop(alert domain.Alert, reason string) {
	p.logger.Warn("alert dropped", "date", alert.Date, "std_dev", alert.StdDev, "reason", reason)
	p.metrics.Alerts.WithLabelValues("dropped").Inc()
}
