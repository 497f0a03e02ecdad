package objectstore

import (
	"context"
	"fmt"

	"github.com/couchcryptid/sensor-temperature-etl/internal/domain"
)

// Store is the object store contract the decorator wraps.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Emitter announces a newly created object.
type Emitter interface {
	Emit(ctx context.Context, ev domain.ObjectEvent) error
}

// Notifying emits an object-created event after every successful Put or
// Copy, the way a bucket with event notifications does.
type Notifying struct {
	Store
	emitter Emitter
}

// NewNotifying wraps store so that writes are announced through emitter.
func NewNotifying(store Store, emitter Emitter) *Notifying {
	return &Notifying{Store: store, emitter: emitter}
}

// Put writes the object and then emits its event.
func (n *Notifying) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := n.Store.Put(ctx, bucket, key, data); err != nil {
		return err
	}
	return n.emit(ctx, bucket, key)
}

// Copy copies the object and then emits an event for the destination.
func (n *Notifying) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	if err := n.Store.Copy(ctx, bucket, srcKey, dstKey); err != nil {
		return err
	}
	return n.emit(ctx, bucket, dstKey)
}

func (n *Notifying) emit(ctx context.Context, bucket, key string) error {
	ev := domain.ObjectEvent{Bucket: bucket, Key: key}
	if err := n.emitter.Emit(ctx, ev); err != nil {
		return fmt.Errorf("notify %s: %w", ev, err)
	}
	return nil
}
