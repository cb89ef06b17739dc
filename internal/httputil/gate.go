// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate spaces out requests to a single upstream. The first Wait returns
// immediately; each later Wait blocks until interval has passed since the
// previous one.
type Gate struct {
	limiter *rate.Limiter
}

// NewGate returns a gate allowing one request per interval. A zero or
// negative interval disables waiting.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next request is allowed or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}
