package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
	"github.com/couchcryptid/sensor-temperature-etl/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Processor feeds messages from a source to a handler one at a time. A
// message is committed once its handler succeeds, skips it, or fails
// permanently. Retryable failures are handed to the handler again after a
// backoff, up to maxDeliveries attempts, and then committed as abandoned.
type Processor struct {
	name          string
	source        MessageSource
	handler       Handler
	maxDeliveries int
	logger        *slog.Logger
	metrics       *observability.Metrics
	running       atomic.Bool
	handled       atomic.Int64
}

// NewProcessor creates a Processor. name labels its logs and metrics.
func NewProcessor(name string, source MessageSource, handler Handler, maxDeliveries int, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		name:          name,
		source:        source,
		handler:       handler,
		maxDeliveries: max(maxDeliveries, 1),
		logger:        logger.With("source", name),
		metrics:       metrics,
	}
}

// CheckReadiness returns nil while Run is consuming messages.
func (p *Processor) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return fmt.Errorf("%s processor is not running", p.name)
	}
	return nil
}

// Handled returns the number of messages committed so far.
func (p *Processor) Handled() int64 {
	return p.handled.Load()
}

// Run consumes messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor started", "max_deliveries", p.maxDeliveries)
	p.running.Store(true)
	p.metrics.ProcessorRunning.WithLabelValues(p.name).Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.ProcessorRunning.WithLabelValues(p.name).Set(0)
	}()

	// Exponential backoff for fetch errors: start at 200ms, double each
	// retry, cap at 5s.
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("processor stopping", "reason", ctx.Err())
			return nil
		default:
		}

		msg, err := p.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("fetch message failed", "error", err)
			if !p.backoffOrStop(ctx, &backoff) {
				return nil
			}
			continue
		}
		backoff = initialBackoff
		p.metrics.MessagesConsumed.WithLabelValues(p.name).Inc()

		if !p.process(ctx, msg) {
			return nil
		}
	}
}

// process delivers msg until it no longer needs redelivery, then commits it.
// Returns false if the processor should stop; the message is left
// uncommitted so it is delivered again after a restart.
func (p *Processor) process(ctx context.Context, msg domain.Message) bool {
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		r := p.handler.Handle(ctx, msg)
		if !r.Failed() {
			break
		}
		if ctx.Err() != nil {
			return false
		}
		if !r.Retryable() {
			p.logger.Error("message failed permanently", "stage", r.Stage, "error", r.Err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			p.metrics.MessagesAbandoned.WithLabelValues(p.name).Inc()
			break
		}
		if attempt >= p.maxDeliveries {
			p.logger.Error("message abandoned after max deliveries", "stage", r.Stage, "error", r.Err,
				"attempts", attempt, "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			p.metrics.MessagesAbandoned.WithLabelValues(p.name).Inc()
			break
		}

		p.logger.Warn("redelivering message", "stage", r.Stage, "error", r.Err,
			"attempt", attempt, "backoff", backoff, "offset", msg.Offset)
		p.metrics.MessageRedeliveries.WithLabelValues(p.name).Inc()
		if !p.backoffOrStop(ctx, &backoff) {
			return false
		}
	}

	p.commitOffset(ctx, msg)
	p.handled.Add(1)
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the processor should stop.
func (p *Processor) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Processor) commitOffset(ctx context.Context, msg domain.Message) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	}
}
