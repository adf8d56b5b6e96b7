package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu             sync.Mutex
	requestCount   map[string]int64
	errorCount     map[string]int64
	exchangeCount  map[string]int64
	rateLimitDenys map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:   make(map[string]int64),
		errorCount:     make(map[string]int64),
		exchangeCount:  make(map[string]int64),
		rateLimitDenys: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters by OAuth error code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordExchange counts exchange outcomes ("success" or the error code).
func (m *Metrics) RecordExchange(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeCount[outcome]++
}

// RecordRateLimitDeny counts limiter denials per endpoint bucket.
func (m *Metrics) RecordRateLimitDeny(endpoint string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitDenys[endpoint]++
}

// ExchangeCount returns the recorded count for an exchange outcome.
func (m *Metrics) ExchangeCount(outcome string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCount[outcome]
}

// RateLimitDenyCount returns the recorded denial count for an endpoint bucket.
func (m *Metrics) RateLimitDenyCount(endpoint string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateLimitDenys[endpoint]
}
