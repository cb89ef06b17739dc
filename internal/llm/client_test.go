// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/pkg/types"
)

func testConfig() types.LLMConfig {
	return types.LLMConfig{
		Model:        "gemini-test",
		Temperature:  0.2,
		MaxRetries:   3,
		QuotaBackoff: time.Millisecond,
	}
}

func TestClientGenerateReturnsText(t *testing.T) {
	fake := &FakeBackend{Replies: []string{"hello"}}
	c := NewClient(fake, testConfig(), zerolog.Nop(), nil)

	assert.Equal(t, "hello", c.Generate(context.Background(), "say hi"))
	assert.Equal(t, 1, c.Calls())
	assert.Equal(t, []string{"say hi"}, fake.Prompts)
}

func TestClientRetriesQuotaErrors(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantText  string
		wantCalls int
	}{
		{
			name:      "recovers after two quota errors",
			errs:      []error{ErrQuota, ErrQuota},
			wantText:  "ok",
			wantCalls: 3,
		},
		{
			name:      "gives up after max retries",
			errs:      []error{ErrQuota, ErrQuota, ErrQuota, ErrQuota},
			wantText:  ErrorPrefix,
			wantCalls: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := make([]string, len(tt.errs)+1)
			replies[len(tt.errs)] = "ok"
			fake := &FakeBackend{Replies: replies, Errors: tt.errs}
			c := NewClient(fake, testConfig(), zerolog.Nop(), nil)

			got := c.Generate(context.Background(), "p")
			assert.True(t, strings.HasPrefix(got, tt.wantText), "got %q", got)
			assert.Len(t, fake.Prompts, tt.wantCalls)
		})
	}
}

func TestClientMaxTokensBecomesSkip(t *testing.T) {
	fake := &FakeBackend{Errors: []error{fmt.Errorf("wrapped: %w", ErrMaxTokens)}}
	c := NewClient(fake, testConfig(), zerolog.Nop(), nil)

	got := c.Generate(context.Background(), "p")
	assert.True(t, strings.HasPrefix(got, SkippedPrefix))
	assert.True(t, IsErrorText(got))
	assert.Len(t, fake.Prompts, 1, "max tokens must not be retried")
}

func TestClientOtherErrorsBecomeErrorText(t *testing.T) {
	fake := &FakeBackend{Errors: []error{errors.New("boom")}}
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	c := NewClient(fake, testConfig(), zerolog.Nop(), m)

	got := c.Generate(context.Background(), "p")
	assert.Equal(t, ErrorPrefix+": boom", got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("error")))
}

func TestClientEmptyReplyIsError(t *testing.T) {
	fake := &FakeBackend{}
	c := NewClient(fake, testConfig(), zerolog.Nop(), nil)
	assert.True(t, IsErrorText(c.Generate(context.Background(), "p")))
}

func TestClientGenerateWithFileDeletesUpload(t *testing.T) {
	fake := &FakeBackend{Replies: []string{"summary"}}
	c := NewClient(fake, testConfig(), zerolog.Nop(), nil)

	got := c.GenerateWithFile(context.Background(), "summarize", "/tmp/paper.pdf", "application/pdf")
	assert.Equal(t, "summary", got)
	require.Len(t, fake.Uploaded, 1)
	assert.Equal(t, "/tmp/paper.pdf", fake.Uploaded[0])
	assert.Equal(t, []string{"files/1"}, fake.Deleted)
}

func TestIsErrorText(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"% ERROR: quota", true},
		{"  % SKIPPED: max output tokens reached", true},
		{"RELEVANCE: RELEVANT\nA fine paper.", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsErrorText(tt.text), tt.text)
	}
}

func TestRateLimiterPausesAfterEveryK(t *testing.T) {
	r := NewRateLimiter(2, time.Millisecond)
	var pausedAt []int
	r.OnPause = func(calls int, _ time.Duration) { pausedAt = append(pausedAt, calls) }

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
	assert.Equal(t, 5, r.Calls())
	assert.Equal(t, []int{2, 4}, pausedAt)
}

func TestRateLimiterZeroValueNeverPauses(t *testing.T) {
	var r RateLimiter
	r.OnPause = func(int, time.Duration) { t.Fatal("unexpected pause") }
	for i := 0; i < 20; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
	assert.Equal(t, 20, r.Calls())
}

func TestRateLimiterPauseHonoursContext(t *testing.T) {
	r := NewRateLimiter(1, time.Hour)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
	assert.Equal(t, 2, r.Calls())
}
