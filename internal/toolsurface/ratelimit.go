/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Per-principal sliding-window rate limiting and a global inflight
// semaphore: pipeline steps 5 and 6 (§4.6.3). The sliding window is
// grounded on internal/controlplane/auth/ratelimit.go's
// RateLimiter/window shape; the inflight semaphore generalizes the
// same package's concurrency-limiter idiom to a single global cap
// rather than a per-key one.
package toolsurface

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter enforces a fixed request budget per principal within a
// rolling window, resetting the window once it elapses.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	size    time.Duration
}

// NewRateLimiter builds a limiter allowing limit requests per size per
// principal key.
func NewRateLimiter(limit int, size time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
	}
}

// Allow reports whether key may make one more request right now,
// incrementing its counter if so.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit <= 0 {
		return true
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok || now.Sub(w.start) >= r.size {
		r.windows[key] = &window{start: now, count: 1}
		return true
	}
	if w.count >= r.limit {
		return false
	}
	w.count++
	return true
}

// Remaining returns how many requests key has left in its current
// window.
func (r *RateLimiter) Remaining(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[key]
	if !ok || time.Since(w.start) >= r.size {
		return r.limit
	}
	left := r.limit - w.count
	if left < 0 {
		return 0
	}
	return left
}

// InflightLimiter is a global semaphore bounding concurrent tool calls
// across all principals (§4.6.3 step 6: "Overloaded on exceed").
type InflightLimiter struct {
	sem chan struct{}
}

// NewInflightLimiter builds a limiter permitting at most max concurrent
// acquisitions. max <= 0 disables the cap.
func NewInflightLimiter(max int) *InflightLimiter {
	if max <= 0 {
		return &InflightLimiter{}
	}
	return &InflightLimiter{sem: make(chan struct{}, max)}
}

// Acquire attempts to reserve one inflight slot, returning a release
// func and true on success, or false if the limiter is at capacity.
func (l *InflightLimiter) Acquire() (release func(), ok bool) {
	if l.sem == nil {
		return func() {}, true
	}
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, true
	default:
		return func() {}, false
	}
}
