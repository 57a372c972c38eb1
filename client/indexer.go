package client

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Indexer generates the msgid values a Client attaches to outgoing
// Requests. Values wrap around modulo 2^32; an Indexer does not track which
// ids are still outstanding, so a wrapped id that lands on a pending call is
// rejected by the Session's Reservator with reservator.ErrAlreadyReserved.
type Indexer interface {
	Next(ctx context.Context) (uint32, error)
}

// AtomicIndexer is the default Indexer: an in-process monotonic counter
// that wraps around modulo 2^32. Safe for concurrent use.
type AtomicIndexer struct {
	counter atomic.Uint32
}

// NewAtomicIndexer returns an AtomicIndexer starting at 0.
func NewAtomicIndexer() *AtomicIndexer { return &AtomicIndexer{} }

func (a *AtomicIndexer) Next(ctx context.Context) (uint32, error) {
	return a.counter.Add(1) - 1, nil
}

// RedisIndexer generates msgids via a Redis INCR against a shared key,
// letting multiple Client processes draw from the same id space — needed
// when several processes multiplex Requests over one Session's Send/Recv
// (e.g. behind a load balancer that pins connections but not processes).
type RedisIndexer struct {
	rdb *redis.Client
	key string
}

// NewRedisIndexer returns a RedisIndexer drawing from key on rdb.
func NewRedisIndexer(rdb *redis.Client, key string) *RedisIndexer {
	return &RedisIndexer{rdb: rdb, key: key}
}

func (r *RedisIndexer) Next(ctx context.Context) (uint32, error) {
	n, err := r.rdb.Incr(ctx, r.key).Result()
	if err != nil {
		return 0, err
	}
	return uint32(uint64(n) % (1 << 32)), nil
}
