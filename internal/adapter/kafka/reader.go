package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// Reader consumes messages from one Kafka topic as part of a consumer group.
// It implements pipeline.MessageSource. Offsets are committed explicitly
// through each message's Commit callback.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for topic in group groupID.
func NewReader(brokers []string, topic, groupID string, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // synchronous commits
		StartOffset:    kafkago.FirstOffset,
	})
	return &Reader{reader: r, logger: logger.With("topic", topic)}
}

// Fetch blocks until the next message is available or ctx is done.
func (r *Reader) Fetch(ctx context.Context) (domain.Message, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	m := mapMessage(msg)
	m.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	r.logger.Debug("message fetched", "partition", msg.Partition, "offset", msg.Offset)
	return m, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage converts a kafka-go message without its commit callback.
func mapMessage(msg kafkago.Message) domain.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
