package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record mirrors the refresh-session entries written by the authorization
// flow. The gateway only reads them.
type Record struct {
	UserID    string    `json:"user_id"`
	Resource  string    `json:"resource"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Checker confirms a user's underlying refresh session is still live before
// a new token is minted from it.
type Checker interface {
	Confirm(ctx context.Context, userID, resource string) (bool, error)
}

const sessionKeyPrefix = "session:"

// RedisChecker scans live session keys for one matching both the user and
// the original resource scope.
//
// The linear scan is acceptable at the current session count (low thousands);
// past that, sessions should be indexed by user id. That is an implementation
// swap behind Checker, not a contract change.
type RedisChecker struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedisChecker wraps the shared Redis client. timeout bounds the whole
// scan so a slow store cannot stall the exchange path.
func NewRedisChecker(client redis.UniversalClient, timeout time.Duration) *RedisChecker {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisChecker{client: client, timeout: timeout}
}

// Confirm reports whether any live session matches userID and resource.
// Store failures are returned to the caller: liveness is a security gate and
// must not fail open.
func (c *RedisChecker) Confirm(ctx context.Context, userID, resource string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return false, err
		}

		for _, key := range keys {
			raw, err := c.client.Get(ctx, key).Result()
			if err == redis.Nil {
				// Expired between SCAN and GET.
				continue
			}
			if err != nil {
				return false, err
			}

			var rec Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				continue
			}
			if rec.UserID == userID && rec.Resource == resource {
				return true, nil
			}
		}

		cursor = next
		if cursor == 0 {
			return false, nil
		}
	}
}

// MemoryChecker is an in-process Checker for tests.
type MemoryChecker struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryChecker constructs an empty checker.
func NewMemoryChecker() *MemoryChecker {
	return &MemoryChecker{}
}

// Add registers a live session record.
func (c *MemoryChecker) Add(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

// Remove drops all sessions for the user, simulating revocation.
func (c *MemoryChecker) Remove(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.records[:0]
	for _, rec := range c.records {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	c.records = kept
}

// Confirm reports whether a matching live session exists.
func (c *MemoryChecker) Confirm(_ context.Context, userID, resource string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := time.Now()
	for _, rec := range c.records {
		if rec.UserID == userID && rec.Resource == resource {
			if rec.ExpiresAt.IsZero() || rec.ExpiresAt.After(now) {
				return true, nil
			}
		}
	}
	return false, nil
}
