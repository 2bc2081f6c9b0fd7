package service

import (
	"context"
	"sync"
	"time"

	dErrors "marginalia/pkg/domain-errors"
)

// StoreTx provides a transactional boundary for multi-step store mutations.
// Conversions delete and recreate inside one transaction so no reader
// observes the halfway state. Implementations may wrap a database
// transaction or, in memory, a lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// numTxShards spreads in-process transaction locks across mutexes keyed by
// resource hash, so conversions on unrelated documents do not contend.
const numTxShards = 128

// defaultTxTimeout is the maximum duration for one transaction.
const defaultTxTimeout = 5 * time.Second

type shardedTx struct {
	shards  [numTxShards]sync.Mutex
	store   Store
	timeout time.Duration
}

func newShardedTx(store Store) *shardedTx {
	return &shardedTx{store: store}
}

func (t *shardedTx) RunInTx(ctx context.Context, fn func(store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(t.store)
}

// selectShard picks a shard from the resource in context, defaulting to
// shard 0.
func (t *shardedTx) selectShard(ctx context.Context) int {
	if resource, ok := ctx.Value(txResourceKeyCtx).(string); ok && resource != "" {
		return int(hashResource(resource) % numTxShards)
	}
	return 0
}

// hashResource is FNV-1a.
func hashResource(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

type txResourceKey struct{}

var txResourceKeyCtx = txResourceKey{}

// withTxResource routes a transaction onto its resource's lock shard.
// Database-backed transactions ignore the value.
func withTxResource(ctx context.Context, resource string) context.Context {
	return context.WithValue(ctx, txResourceKeyCtx, resource)
}
