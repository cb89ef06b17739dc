// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimiter counts LLM calls and pauses after every Every calls.
// The zero value never pauses.
type RateLimiter struct {
	Every int
	Pause time.Duration

	// OnPause, when set, is called before each pause.
	OnPause func(calls int, pause time.Duration)

	mu    sync.Mutex
	calls int
}

// NewRateLimiter returns a limiter that sleeps pause after every calls.
func NewRateLimiter(every int, pause time.Duration) *RateLimiter {
	return &RateLimiter{Every: every, Pause: pause}
}

// Wait records one call. When the call count reaches a multiple of Every
// it blocks for Pause first. It returns ctx.Err() if ctx ends during the
// pause; the call still counts.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.mu.Unlock()

	if r.Every <= 0 || r.Pause <= 0 || n <= 1 || (n-1)%r.Every != 0 {
		return nil
	}
	if r.OnPause != nil {
		r.OnPause(n-1, r.Pause)
	}

	t := time.NewTimer(r.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Calls returns the number of calls recorded so far.
func (r *RateLimiter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
