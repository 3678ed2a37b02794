// Package ratelimit gates upload batches per client with a sliding window.
// The window is owned by whatever service instance it is injected into,
// never package-level state, so tests can construct and reset it freely.
package ratelimit

import (
	"sync"
	"time"
)

// Window allows up to limit hits per key within span. It tracks at most
// capacity keys; when full, the key idle the longest is evicted.
type Window struct {
	mu       sync.Mutex
	limit    int
	span     time.Duration
	capacity int
	now      func() time.Time
	hits     map[string][]time.Time
}

func New(limit int, span time.Duration, capacity int) *Window {
	return &Window{
		limit:    limit,
		span:     span,
		capacity: capacity,
		now:      time.Now,
		hits:     make(map[string][]time.Time),
	}
}

// Allow records a hit for key and reports whether it fits in the window.
// A rejected hit is not recorded.
func (w *Window) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.span)

	recent := w.hits[key][:0:len(w.hits[key])]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= w.limit {
		w.hits[key] = recent
		return false
	}

	if _, tracked := w.hits[key]; !tracked && len(w.hits) >= w.capacity {
		w.evictIdlest()
	}

	w.hits[key] = append(recent, now)
	return true
}

// Reset drops all tracked hits.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hits = make(map[string][]time.Time)
}

// evictIdlest removes the key whose newest hit is oldest. Caller holds mu.
func (w *Window) evictIdlest() {
	var victim string
	var newest time.Time
	first := true
	for key, times := range w.hits {
		last := time.Time{}
		if len(times) > 0 {
			last = times[len(times)-1]
		}
		if first || last.Before(newest) {
			victim = key
			newest = last
			first = false
		}
	}
	if !first {
		delete(w.hits, victim)
	}
}
