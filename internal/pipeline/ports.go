package pipeline

import (
	"context"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// ObjectStore reads and writes whole objects. Get returns
// domain.ErrObjectNotFound for a missing key. Put must publish the object
// atomically: readers see either the previous or the new content.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Notifier publishes alerts to a named notification channel.
type Notifier interface {
	Publish(ctx context.Context, topic string, alert domain.Alert) error
}

// JobTrigger starts a named batch job and returns its run id without
// waiting for the run.
type JobTrigger interface {
	Start(ctx context.Context, jobName string) (string, error)
}

// KeyedStore writes monthly metrics keyed by (year, month). Writing the same
// key again overwrites it.
type KeyedStore interface {
	PutMetric(ctx context.Context, table string, m domain.MonthlyMetric) error
}

// Locker grants one writer per key at a time.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MessageSource yields messages one at a time.
type MessageSource interface {
	Fetch(ctx context.Context) (domain.Message, error)
}

// Handler processes one message and reports the outcome.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) Result
}
