package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// WindowStore is the shared counter abstraction behind the sliding-window
// limiter. Implementations must provide atomic sorted-set style insert,
// range-count and expire semantics with millisecond-resolution timestamps.
type WindowStore interface {
	// CountInWindow prunes entries older than windowStart (Unix ms) and
	// returns the remaining count plus the oldest surviving timestamp.
	// oldest is zero when the window is empty.
	CountInWindow(ctx context.Context, key string, windowStart int64) (count int64, oldest int64, err error)
	// Record inserts a timestamp into the window and refreshes the key TTL,
	// bounding storage for idle identifiers.
	Record(ctx context.Context, key string, ts int64, ttl time.Duration) error
}

// RedisStore implements WindowStore on a Redis sorted set per key.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps the given Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// CountInWindow trims and counts the window in a single pipeline.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, windowStart int64) (int64, int64, error) {
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", "("+strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	count := countCmd.Val()
	var oldest int64
	if members := oldestCmd.Val(); len(members) > 0 {
		oldest = int64(members[0].Score)
	}
	return count, oldest, nil
}

// Record inserts the timestamp and extends the key TTL to the window length.
// Members carry a random suffix so two requests landing on the same
// millisecond both count.
func (s *RedisStore) Record(ctx context.Context, key string, ts int64, ttl time.Duration) error {
	member := strconv.FormatInt(ts, 10) + "-" + uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(ts), Member: member})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// MemoryStore is an in-process WindowStore for tests and single-node
// fallback. Eviction happens by pruning on read; empty buckets are dropped to
// keep memory bounded.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string][]int64
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string][]int64)}
}

// CountInWindow prunes timestamps older than windowStart and reports the rest.
func (s *MemoryStore) CountInWindow(_ context.Context, key string, windowStart int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.buckets[key]
	pruneIdx := 0
	for pruneIdx < len(ts) && ts[pruneIdx] < windowStart {
		pruneIdx++
	}
	if pruneIdx > 0 {
		ts = ts[pruneIdx:]
	}

	if len(ts) == 0 {
		delete(s.buckets, key)
		return 0, 0, nil
	}
	s.buckets[key] = ts
	return int64(len(ts)), ts[0], nil
}

// Record appends the timestamp, keeping the slice ordered. TTL is implicit:
// entries fall out of scope on the next pruning read.
func (s *MemoryStore) Record(_ context.Context, key string, ts int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.buckets[key]
	// Timestamps arrive near-monotonically; walk back only for stragglers.
	idx := len(bucket)
	for idx > 0 && bucket[idx-1] > ts {
		idx--
	}
	bucket = append(bucket, 0)
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = ts
	s.buckets[key] = bucket
	return nil
}
