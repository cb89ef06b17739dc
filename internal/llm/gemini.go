// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// GeminiBackend calls the Gemini API through the genai SDK.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a backend for model authenticated with apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

// Generate implements Backend.
func (g *GeminiBackend) Generate(ctx context.Context, req Request) (Response, error) {
	parts := make([]*genai.Part, 0, len(req.Files)+1)
	for _, f := range req.Files {
		parts = append(parts, genai.NewPartFromURI(f.URI, f.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: req.MaxOutputTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		return Response{Text: resp.Text()}, ErrMaxTokens
	}

	text := resp.Text()
	if text == "" {
		return Response{}, ErrEmptyResponse
	}
	return Response{Text: text}, nil
}

// UploadFile implements Backend.
func (g *GeminiBackend) UploadFile(ctx context.Context, path, mimeType string) (FileRef, error) {
	f, err := g.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return FileRef{}, classifyGeminiError(err)
	}
	return FileRef{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

// DeleteFile implements Backend.
func (g *GeminiBackend) DeleteFile(ctx context.Context, ref FileRef) error {
	if _, err := g.client.Files.Delete(ctx, ref.Name, nil); err != nil {
		return fmt.Errorf("deleting %s: %w", ref.Name, err)
	}
	return nil
}

// classifyGeminiError maps HTTP 429 and RESOURCE_EXHAUSTED to ErrQuota.
func classifyGeminiError(err error) error {
	var code int
	var status string

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code, status = apiErr.Code, apiErr.Status
	case errors.As(err, &apiErrPtr):
		code, status = apiErrPtr.Code, apiErrPtr.Status
	default:
		return err
	}

	if code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("%w: %v", ErrQuota, err)
	}
	return err
}
