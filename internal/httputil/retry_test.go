// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	RetryBaseDelay = time.Millisecond
}

// scripted answers with statuses in order, repeating the last one.
func scripted(t *testing.T, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		if n > len(statuses) {
			n = len(statuses)
		}
		w.WriteHeader(statuses[n-1])
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func TestDoWithRetry(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []int
		maxRetries int
		wantStatus int
		wantCalls  int32
	}{
		{"immediate success", []int{200}, 5, 200, 1},
		{"throttled then ok", []int{429, 429, 200}, 5, 200, 3},
		{"service unavailable retried", []int{503, 200}, 2, 200, 2},
		{"retries exhausted", []int{429}, 3, 429, 4},
		{"default retries", []int{429}, 0, 429, 6},
		{"server error not retried", []int{500}, 5, 500, 1},
		{"not found not retried", []int{404, 200}, 5, 404, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, calls := scripted(t, tt.statuses...)
			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			require.NoError(t, err)

			resp, err := DoWithRetry(context.Background(), ts.Client(), req, tt.maxRetries)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))
		})
	}
}

func TestDoWithRetryHonoursRetryAfter(t *testing.T) {
	old := RetryBaseDelay
	RetryBaseDelay = time.Hour
	defer func() { RetryBaseDelay = old }()

	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	resp, err := DoWithRetry(ctx, ts.Client(), req, 1)
	require.NoError(t, err, "Retry-After: 0 must override the hour-long base delay")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoWithRetryContextCancelled(t *testing.T) {
	ts, _ := scripted(t, http.StatusTooManyRequests)

	old := RetryBaseDelay
	RetryBaseDelay = 500 * time.Millisecond
	defer func() { RetryBaseDelay = old }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	_, err = DoWithRetry(ctx, ts.Client(), req, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 7 * time.Second},
		{"3", 3 * time.Second},
		{" 0 ", 0},
		{"-1", 7 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 7 * time.Second},
		{"86400", MaxBackoff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryAfter(tt.header, 7*time.Second), "header %q", tt.header)
	}
}

func TestGateSpacesRequests(t *testing.T) {
	g := NewGate(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, g.Wait(ctx))
	require.NoError(t, g.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGateDisabled(t *testing.T) {
	g := NewGate(0)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	var nilGate *Gate
	assert.NoError(t, nilGate.Wait(context.Background()))
}

func TestGateHonoursContext(t *testing.T) {
	g := NewGate(time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, g.Wait(ctx))
}
