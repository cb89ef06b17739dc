// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the search and download
// stages: 429-aware retries and a politeness gate between requests.
package httputil

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RetryBaseDelay is the first wait after a 429 or 503 response that carries
// no Retry-After header. Later waits double. Tests shorten it.
var RetryBaseDelay = 10 * time.Second

// MaxBackoff caps a single wait, including one requested by Retry-After.
var MaxBackoff = 2 * time.Minute

const defaultMaxRetries = 5

// DoWithRetry sends req and resends it while the upstream answers 429 or
// 503, at most maxRetries times (5 when maxRetries is 0). A Retry-After
// header in seconds sets the wait; otherwise waits double from
// RetryBaseDelay. The last response is returned unread whatever its status.
// Waits are logged through the logger attached to ctx.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	log := zerolog.Ctx(ctx)
	delay := min(RetryBaseDelay, MaxBackoff)

	for attempt := 1; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if attempt > maxRetries || !throttled(resp.StatusCode) {
			return resp, nil
		}

		wait := retryAfter(resp.Header.Get("Retry-After"), delay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log.Warn().
			Str("host", req.URL.Host).
			Int("status", resp.StatusCode).
			Dur("backoff", wait).
			Int("attempt", attempt).
			Int("max_retries", maxRetries).
			Msg("upstream throttled, backing off")

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay = min(delay*2, MaxBackoff)
	}
}

func throttled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryAfter reads a delta-seconds Retry-After value. HTTP dates and
// malformed values fall back to def.
func retryAfter(header string, def time.Duration) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs < 0 {
		return def
	}
	return min(time.Duration(secs)*time.Second, MaxBackoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
