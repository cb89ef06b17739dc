// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps the hosted language model used by every generation
// stage. A Backend performs raw calls; a Client layers the soft rate limit,
// quota retries, and the error-text convention on top.
//
// Callers never receive errors from Client.Generate. Failures come back as
// text starting with ErrorPrefix or SkippedPrefix so that they can be
// written to disk next to normal output and recognized later with
// IsErrorText.
package llm

import (
	"context"
	"errors"
	"strings"
)

const (
	// ErrorPrefix marks generation failures in returned text.
	ErrorPrefix = "% ERROR"

	// SkippedPrefix marks generations abandoned at the output token limit.
	SkippedPrefix = "% SKIPPED"
)

var (
	// ErrQuota reports a provider quota or HTTP 429 response.
	ErrQuota = errors.New("llm: quota exhausted")

	// ErrMaxTokens reports that generation stopped at the output token limit.
	ErrMaxTokens = errors.New("llm: max output tokens reached")

	// ErrEmptyResponse reports a reply without any text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Request is one generation call.
type Request struct {
	Prompt          string
	Files           []FileRef
	Temperature     float32
	MaxOutputTokens int32
}

// Response is the text of one generation call.
type Response struct {
	Text string
}

// FileRef identifies a file uploaded to the provider.
type FileRef struct {
	Name     string
	URI      string
	MIMEType string
}

// Backend abstracts the provider API so tests can supply a scripted fake.
type Backend interface {
	Generate(ctx context.Context, req Request) (Response, error)
	UploadFile(ctx context.Context, path, mimeType string) (FileRef, error)
	DeleteFile(ctx context.Context, ref FileRef) error
}

// Generator is the text-in, text-out surface consumed by pipeline stages.
// *Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// IsErrorText reports whether text is a failure marker produced by Client.
func IsErrorText(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, ErrorPrefix) || strings.HasPrefix(t, SkippedPrefix)
}
