// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// QuotaBackoff is the fixed wait between quota retries when the config
// leaves it unset. Tests override this to avoid real sleeps.
var QuotaBackoff = 60 * time.Second

const defaultMaxRetries = 3

// Client is the single entry point for generation calls.
type Client struct {
	backend Backend
	limiter *RateLimiter
	log     zerolog.Logger
	metrics *observability.Metrics

	temperature     float32
	maxOutputTokens int32
	maxRetries      int
	backoff         time.Duration
}

// NewClient builds a Client over backend using the rate limit and retry
// settings in cfg.
func NewClient(backend Backend, cfg types.LLMConfig, log zerolog.Logger, m *observability.Metrics) *Client {
	m = observability.OrDiscard(m)
	limiter := NewRateLimiter(cfg.CallsBeforePause, cfg.Pause)
	limiter.OnPause = func(calls int, pause time.Duration) {
		m.LLMCooldowns.Inc()
		log.Info().Int("calls", calls).Dur("pause", pause).Msg("llm cooldown")
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	return &Client{
		backend:         backend,
		limiter:         limiter,
		log:             log,
		metrics:         m,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		maxRetries:      retries,
		backoff:         cfg.QuotaBackoff,
	}
}

// Calls returns the number of generation attempts made through c.
func (c *Client) Calls() int {
	return c.limiter.Calls()
}

// Generate sends prompt and returns the reply text, or a marker string
// when generation failed.
func (c *Client) Generate(ctx context.Context, prompt string) string {
	return c.generate(ctx, Request{Prompt: prompt})
}

// GenerateWithFile uploads path, generates with the file attached, and
// deletes the upload afterwards.
func (c *Client) GenerateWithFile(ctx context.Context, prompt, path, mimeType string) string {
	ref, err := c.backend.UploadFile(ctx, path, mimeType)
	if err != nil {
		c.metrics.LLMCalls.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Str("path", path).Msg("uploading file for generation")
		return fmt.Sprintf("%s: uploading %s: %v", ErrorPrefix, path, err)
	}
	defer func() {
		if err := c.backend.DeleteFile(context.WithoutCancel(ctx), ref); err != nil {
			c.log.Warn().Err(err).Str("file", ref.Name).Msg("deleting uploaded file")
		}
	}()
	return c.generate(ctx, Request{Prompt: prompt, Files: []FileRef{ref}})
}

func (c *Client) generate(ctx context.Context, req Request) string {
	req.Temperature = c.temperature
	req.MaxOutputTokens = c.maxOutputTokens

	backoff := c.backoff
	if backoff <= 0 {
		backoff = QuotaBackoff
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Sprintf("%s: %v", ErrorPrefix, err)
		}

		resp, err := c.backend.Generate(ctx, req)
		switch {
		case err == nil && resp.Text != "":
			c.metrics.LLMCalls.WithLabelValues("ok").Inc()
			return resp.Text
		case err == nil:
			err = ErrEmptyResponse
		case errors.Is(err, ErrMaxTokens):
			c.metrics.LLMCalls.WithLabelValues("skipped").Inc()
			c.log.Warn().Int32("max_output_tokens", req.MaxOutputTokens).Msg("generation stopped at output token limit, skipping")
			return fmt.Sprintf("%s: max output tokens reached", SkippedPrefix)
		case errors.Is(err, ErrQuota) && attempt < c.maxRetries:
			c.metrics.LLMCalls.WithLabelValues("quota_retry").Inc()
			c.log.Warn().Err(err).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Dur("backoff", backoff).Msg("llm quota exhausted, retrying")
			select {
			case <-ctx.Done():
				return fmt.Sprintf("%s: %v", ErrorPrefix, ctx.Err())
			case <-time.After(backoff):
			}
			continue
		}

		c.metrics.LLMCalls.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Int("attempt", attempt+1).Msg("llm generation failed")
		return fmt.Sprintf("%s: %v", ErrorPrefix, err)
	}
}
