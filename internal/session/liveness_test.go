package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisChecker(t *testing.T) (*RedisChecker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisChecker(client, time.Second), mr
}

func seedSession(t *testing.T, mr *miniredis.Miniredis, key string, rec Record) {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, mr.Set(sessionKeyPrefix+key, string(raw)))
}

func TestConfirmMatchingSession(t *testing.T) {
	checker, mr := newRedisChecker(t)
	seedSession(t, mr, "abc", Record{
		UserID:    "user-1",
		Resource:  "urn:mcp:bug-reporter",
		ExpiresAt: time.Now().Add(time.Hour),
	})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.True(t, live)
}

func TestConfirmNoSessions(t *testing.T) {
	checker, _ := newRedisChecker(t)

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestConfirmWrongResource(t *testing.T) {
	checker, mr := newRedisChecker(t)
	seedSession(t, mr, "abc", Record{UserID: "user-1", Resource: "urn:mcp:prompt-library"})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestConfirmWrongUser(t *testing.T) {
	checker, mr := newRedisChecker(t)
	seedSession(t, mr, "abc", Record{UserID: "user-2", Resource: "urn:mcp:bug-reporter"})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestConfirmScansManySessions(t *testing.T) {
	checker, mr := newRedisChecker(t)
	for i := 0; i < 250; i++ {
		seedSession(t, mr, "other-"+string(rune('a'+i%26))+string(rune('0'+i%10))+"-"+time.Now().String(),
			Record{UserID: "someone-else", Resource: "urn:mcp:bug-reporter"})
	}
	seedSession(t, mr, "target", Record{UserID: "user-1", Resource: "urn:mcp:bug-reporter"})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.True(t, live)
}

func TestConfirmSkipsMalformedRecords(t *testing.T) {
	checker, mr := newRedisChecker(t)
	require.NoError(t, mr.Set(sessionKeyPrefix+"junk", "{not json"))
	seedSession(t, mr, "good", Record{UserID: "user-1", Resource: "urn:mcp:bug-reporter"})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.True(t, live)
}

func TestMemoryCheckerAddRemove(t *testing.T) {
	checker := NewMemoryChecker()
	checker.Add(Record{UserID: "user-1", Resource: "urn:mcp:bug-reporter"})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.True(t, live)

	checker.Remove("user-1")
	live, err = checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestMemoryCheckerExpiredRecord(t *testing.T) {
	checker := NewMemoryChecker()
	checker.Add(Record{
		UserID:    "user-1",
		Resource:  "urn:mcp:bug-reporter",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	live, err := checker.Confirm(context.Background(), "user-1", "urn:mcp:bug-reporter")
	require.NoError(t, err)
	assert.False(t, live)
}
