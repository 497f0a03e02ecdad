// Package redislock grants one writer per destination across processes
// using a Redis lease.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sensor-temperature-etl:lock:"

// The lease is only released by the holder that set it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// The lease is only extended by the holder that set it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker acquires leases with SET NX PX and extends them every ttl/3 while
// held. A holder that crashes loses its lease after ttl.
// It implements pipeline.Locker.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	renew  time.Duration
	logger *slog.Logger
}

// New creates a Locker. ttl bounds how long a lease outlives a holder that
// stopped renewing it.
func New(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Locker {
	return &Locker{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		renew:  max(ttl/3, time.Millisecond),
		logger: logger,
	}
}

// Lock blocks until the lease for key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(ctx, key, lockKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(ctx, key, lockKey, token)
		})
	}, nil
}

// keepAlive extends the lease until stop is closed or the lease is found to
// belong to someone else.
func (l *Locker) keepAlive(ctx context.Context, key, lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ctx = context.WithoutCancel(ctx)

	ticker := time.NewTicker(l.renew)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		renewCtx, cancel := context.WithTimeout(ctx, l.renew)
		n, err := renewScript.Run(renewCtx, l.client, []string{lockKey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.logger.Warn("renew lease failed", "key", key, "error", err)
		case n == 0:
			l.logger.Error("lease lost", "key", key)
			return
		}
	}
}

func (l *Locker) release(ctx context.Context, key, lockKey, token string) {
	// Release even when the caller's context is already cancelled.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("release lease failed", "key", key, "error", err)
	}
}

// CheckReadiness pings Redis.
func (l *Locker) CheckReadiness(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis not reachable: %w", err)
	}
	return nil
}
