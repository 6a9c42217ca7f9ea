package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window tracks request timestamps for one rate-limit key.
type window struct {
	stamps     []time.Time
	lastAccess time.Time
}

// MemoryLimiter implements Limiter using an in-memory rolling window per key.
//
// Each key gets a fixed budget of requests per window. A request is allowed
// when fewer than budget requests landed within the trailing window. A
// background goroutine evicts idle keys every minute to bound memory.
type MemoryLimiter struct {
	budget int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a rolling-window limiter.
//   - budget: maximum requests per key within the window
//   - window: the trailing interval the budget applies to
//
// A background goroutine evicts keys not accessed in the last 10 minutes.
// Call Close to stop it.
func NewMemoryLimiter(budget int, windowSize time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		budget:  budget,
		window:  windowSize,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow records a request for key and returns true if it fits the budget
// for the trailing window, false otherwise (rate limited).
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	w.lastAccess = now

	// Drop timestamps that have rolled out of the window.
	cutoff := now.Add(-m.window)
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= m.budget {
		return false, nil
	}
	w.stamps = append(w.stamps, now)
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

// cleanup periodically evicts windows that haven't been accessed recently.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-staleThreshold)
	for key, w := range m.windows {
		if w.lastAccess.Before(cutoff) {
			delete(m.windows, key)
		}
	}
}
