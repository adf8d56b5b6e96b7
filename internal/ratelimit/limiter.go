package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Endpoint bucket names. The table is shared platform configuration: the
// primary auth server consumes the authorize/token buckets against the same
// store, so the limits must agree across services.
const (
	EndpointAuthorize   = "authorize"
	EndpointToken       = "token"
	EndpointOBOExchange = "obo-exchange"
	EndpointJWKS        = "jwks"
)

// Limit defines the max request count per trailing window for a bucket.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultLimits returns the fixed per-endpoint limit table.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		EndpointAuthorize:   {Max: 10, Window: time.Minute},
		EndpointToken:       {Max: 20, Window: time.Minute},
		EndpointOBOExchange: {Max: 30, Window: time.Minute},
		EndpointJWKS:        {Max: 100, Window: time.Minute},
		"default":           {Max: 60, Window: time.Minute},
	}
}

// Result is the limiter decision for one request.
type Result struct {
	Allowed bool
	// Remaining is the request budget left in the window after this request,
	// or -1 when unknown (fail-open path).
	Remaining int
	// ResetAt is when the oldest in-window entry leaves the window. Zero when
	// the window was empty or on the fail-open path.
	ResetAt time.Time
}

// Limiter computes allow/deny decisions per (endpoint, identifier) over a
// shared WindowStore.
//
// Two instances checking the same identifier concurrently can both observe
// count == max-1 and both record, letting one extra request through at the
// window boundary. That bounded looseness is accepted in exchange for not
// holding a distributed lock on every request.
type Limiter struct {
	store        WindowStore
	limits       map[string]Limit
	storeTimeout time.Duration
	enabled      bool
	logger       *zap.Logger

	// nowMillis is swappable in tests.
	nowMillis func() int64
}

// NewLimiter builds a limiter. A nil limits map falls back to DefaultLimits.
func NewLimiter(store WindowStore, limits map[string]Limit, storeTimeout time.Duration, enabled bool, logger *zap.Logger) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	if storeTimeout <= 0 {
		storeTimeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:        store,
		limits:       limits,
		storeTimeout: storeTimeout,
		enabled:      enabled,
		logger:       logger,
		nowMillis:    func() int64 { return time.Now().UnixMilli() },
	}
}

func (l *Limiter) limit(endpoint string) Limit {
	if lim, ok := l.limits[endpoint]; ok {
		return lim
	}
	if lim, ok := l.limits["default"]; ok {
		return lim
	}
	return Limit{Max: 60, Window: time.Minute}
}

// Check decides whether a request for (endpoint, identifier) is within budget.
// Store failures fail open: the request is allowed and the failure logged,
// favoring availability over strict enforcement at this layer.
func (l *Limiter) Check(ctx context.Context, endpoint, identifier string) Result {
	if l == nil || !l.enabled || l.store == nil {
		return Result{Allowed: true, Remaining: -1}
	}

	lim := l.limit(endpoint)
	now := l.nowMillis()
	windowStart := now - lim.Window.Milliseconds()
	key := fmt.Sprintf("ratelimit:%s:%s", endpoint, identifier)

	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, oldest, err := l.store.CountInWindow(ctx, key, windowStart)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("endpoint", endpoint), zap.Error(err))
		return Result{Allowed: true, Remaining: -1}
	}

	if count >= int64(lim.Max) {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   time.UnixMilli(oldest).Add(lim.Window),
		}
	}

	if err := l.store.Record(ctx, key, now, lim.Window); err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("endpoint", endpoint), zap.Error(err))
		return Result{Allowed: true, Remaining: -1}
	}

	resetAt := time.UnixMilli(now).Add(lim.Window)
	if oldest > 0 {
		resetAt = time.UnixMilli(oldest).Add(lim.Window)
	}
	return Result{
		Allowed:   true,
		Remaining: lim.Max - int(count) - 1,
		ResetAt:   resetAt,
	}
}
