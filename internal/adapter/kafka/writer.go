package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// messageWriter is the part of *kafkago.Writer the producers use.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces messages to Kafka. Each message names its own topic, so
// one Writer serves alerts, job runs, and storage events.
// It implements pipeline.Notifier.
type Writer struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for brokers.
func NewWriter(brokers []string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	return &Writer{writer: w, clock: clockwork.NewRealClock(), logger: logger}
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Publish sends alert to topic as JSON, keyed by the reading date.
func (w *Writer) Publish(ctx context.Context, topic string, alert domain.Alert) error {
	msg, err := serializeAlert(topic, alert, w.clock.Now())
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish alert to %s: %w", topic, err)
	}
	w.logger.Info("alert published", "topic", topic, "date", alert.Date, "std_dev", alert.StdDev)
	return nil
}

// JobTrigger starts batch jobs by producing a job-run request.
// It implements pipeline.JobTrigger.
type JobTrigger struct {
	w     *Writer
	topic string
}

// NewJobTrigger creates a trigger that produces to topic.
func NewJobTrigger(w *Writer, topic string) *JobTrigger {
	return &JobTrigger{w: w, topic: topic}
}

// Start requests one run of jobName and returns the new run id.
func (j *JobTrigger) Start(ctx context.Context, jobName string) (string, error) {
	run := domain.JobRun{JobName: jobName, RunID: uuid.NewString(), RequestedAt: j.w.clock.Now().UTC()}
	msg, err := serializeJobRun(j.topic, run)
	if err != nil {
		return "", err
	}
	if err := j.w.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("request job %s: %w", jobName, err)
	}
	return run.RunID, nil
}

// EventEmitter produces object-created notifications.
// It implements objectstore.Emitter.
type EventEmitter struct {
	w     *Writer
	topic string
}

// NewEventEmitter creates an emitter that produces to topic.
func NewEventEmitter(w *Writer, topic string) *EventEmitter {
	return &EventEmitter{w: w, topic: topic}
}

// Emit announces ev, keyed by bucket/key so events for one object stay ordered.
func (e *EventEmitter) Emit(ctx context.Context, ev domain.ObjectEvent) error {
	data, err := domain.EncodeNotification(ev, e.w.clock.Now())
	if err != nil {
		return err
	}
	msg := kafkago.Message{
		Topic: e.topic,
		Key:   []byte(ev.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "bucket", Value: []byte(ev.Bucket)},
		},
	}
	if err := e.w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("emit %s: %w", ev, err)
	}
	return nil
}

// serializeAlert marshals an alert into a Kafka message.
func serializeAlert(topic string, alert domain.Alert, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(alert.Date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "subject", Value: []byte(alert.Subject)},
			{Key: "published_at", Value: []byte(at.UTC().Format(time.RFC3339))},
		},
	}, nil
}

// serializeJobRun marshals a job-run request into a Kafka message.
func serializeJobRun(topic string, run domain.JobRun) (kafkago.Message, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize job run: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(run.JobName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(run.RunID)},
		},
	}, nil
}
