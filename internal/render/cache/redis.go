package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"marginalia/pkg/platform/circuit"
)

// probeInterval is how long an open circuit skips Redis before letting a
// single call through to test recovery.
const probeInterval = 10 * time.Second

// Redis is a Cache over Redis, guarded by a circuit breaker. While the
// circuit is open every lookup is an immediate miss and every store a no-op,
// so a Redis outage costs recomputes instead of per-render timeouts. One
// probe per interval is let through; the breaker's success threshold closes
// the circuit again once Redis answers.
type Redis struct {
	client  redis.Cmdable
	breaker *circuit.Breaker
	logger  *slog.Logger
	now     func() time.Time

	// retryAt is the unix-nano deadline of the current skip window.
	retryAt atomic.Int64
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) RedisOption {
	return func(r *Redis) {
		r.breaker = b
	}
}

// WithLogger sets the logger for breaker transitions and Redis failures.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// WithClock overrides the time source for the probe window.
func WithClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		r.now = now
	}
}

// NewRedis creates a Cache over the given Redis client.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuit.New("render-cache")
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Get implements Cache. Missing keys and open-circuit skips are plain
// misses; only a live Redis failure returns an error, after it has been
// recorded against the breaker.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.skip() {
		return nil, false, nil
	}

	payload, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		r.succeed()
		return nil, false, nil
	}
	if err != nil {
		r.fail(err)
		return nil, false, err
	}
	r.succeed()
	return payload, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if r.skip() {
		return nil
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		r.fail(err)
		return err
	}
	r.succeed()
	return nil
}

// skip reports whether this call should bypass Redis. With the circuit open,
// exactly one caller per probe window goes through.
func (r *Redis) skip() bool {
	if !r.breaker.IsOpen() {
		return false
	}
	deadline := r.retryAt.Load()
	if r.now().UnixNano() < deadline {
		return true
	}
	// First caller past the deadline claims the probe slot.
	return !r.retryAt.CompareAndSwap(deadline, r.now().Add(probeInterval).UnixNano())
}

func (r *Redis) fail(err error) {
	_, change := r.breaker.RecordFailure()
	if change.Opened {
		r.retryAt.Store(r.now().Add(probeInterval).UnixNano())
		r.logger.Warn("render cache circuit opened", "error", err.Error())
	}
}

func (r *Redis) succeed() {
	_, change := r.breaker.RecordSuccess()
	if change.Closed {
		r.logger.Info("render cache circuit closed")
	}
}
