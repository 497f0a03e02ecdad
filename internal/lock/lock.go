// Package lock serializes writers of the same destination.
package lock

import (
	"context"
	"sync"
)

// Memory grants one holder per key at a time within a single process.
// The zero value is ready to use.
type Memory struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemory returns an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{}
}

// Lock blocks until key is free or ctx is done. The returned function
// releases the key and must be called exactly once.
func (m *Memory) Lock(ctx context.Context, key string) (func(), error) {
	slot := m.slot(key)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}

func (m *Memory) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slots == nil {
		m.slots = make(map[string]chan struct{})
	}
	s, ok := m.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		m.slots[key] = s
	}
	return s
}
