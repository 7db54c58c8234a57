package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/licensehub/internal/app/system/metrics"
	"go.uber.org/zap"
)

type entry struct {
	data []byte
	at   time.Time
	ttl  time.Duration
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.at.Add(e.ttl))
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
	log     *zap.Logger
}

// NewMemory returns an empty in-process cache. A nil logger is allowed.
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
		log:     logger,
	}
}

// WithClock replaces the clock. Intended for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *Memory) Get(_ context.Context, key string, dst any) bool {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && e.expired(m.now()) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		metrics.CacheRequests.WithLabelValues("memory", "miss").Inc()
		return false
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		m.log.Warn("cache: decode failed", zap.String("key", key), zap.Error(err))
		metrics.CacheRequests.WithLabelValues("memory", "miss").Inc()
		return false
	}
	metrics.CacheRequests.WithLabelValues("memory", "hit").Inc()
	return true
}

func (m *Memory) Set(ctx context.Context, key string, v any) {
	m.SetTTL(ctx, key, v, DefaultTTL)
}

func (m *Memory) SetTTL(_ context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		m.log.Warn("cache: encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	m.mu.Lock()
	m.entries[key] = entry{data: data, at: m.now(), ttl: ttl}
	m.mu.Unlock()
}

func (m *Memory) InvalidateByPrefix(_ context.Context, substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if strings.Contains(k, substr) {
			delete(m.entries, k)
			n++
		}
	}
	metrics.CacheInvalidations.WithLabelValues("memory").Add(float64(n))
	return n
}

func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Prune removes expired entries and returns how many were removed.
func (m *Memory) Prune(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}
