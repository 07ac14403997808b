// Package ratelimit provides per-client sliding-window admission control for
// the mediation endpoint. Buckets live in process memory only; the resource
// being protected is upstream-call cost, not a security boundary.
package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultClientID keys requests whose proxy headers carry no usable address.
const DefaultClientID = "local"

// Limiter admits up to Max requests per client within the trailing Window.
// It is the only shared mutable state in the pipeline and is safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewLimiter builds a limiter with the given window and per-window maximum.
func NewLimiter(window time.Duration, max int) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit records the request and reports whether the client stays within the
// configured maximum. Expired entries are pruned lazily on each call.
func (l *Limiter) Admit(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := l.buckets[clientID][:0]
	for _, ts := range l.buckets[clientID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	l.buckets[clientID] = kept

	return len(kept) <= l.max
}

// Len reports the live entry count for a client after pruning, for tests and
// introspection.
func (l *Limiter) Len(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, ts := range l.buckets[clientID] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// ClientID derives the rate-limit key from the trusted proxy header chain:
// first X-Forwarded-For entry, then X-Real-IP, then CF-Connecting-IP, falling
// back to DefaultClientID. The value is used only as a bucket key and is
// never persisted.
func ClientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return DefaultClientID
}
