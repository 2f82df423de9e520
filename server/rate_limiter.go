package main

import (
	"sync"
	"time"
)

type rateRecord struct {
	count int
	reset time.Time
}

// RateLimiter tracks per-key usage within a fixed window. It guards the
// login endpoint against credential stuffing.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]rateRecord
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{entries: map[string]rateRecord{}}
}

// Allow returns true if the caller may proceed under the provided limit and
// window. A non-positive limit disables limiting.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return true
	}
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.entries[key]
	if !ok || now.After(rec.reset) {
		rec = rateRecord{reset: now.Add(window)}
	}
	if rec.count >= limit {
		return false
	}
	rec.count++
	rl.entries[key] = rec

	// Opportunistic pruning keeps the map from growing across distinct IPs.
	if len(rl.entries) > 10000 {
		for k, r := range rl.entries {
			if now.After(r.reset) {
				delete(rl.entries, k)
			}
		}
	}
	return true
}
