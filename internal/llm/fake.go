// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeBackend is a scripted Backend for tests. Each Generate pops the next
// entry from Replies (or Errors at the same index); when the script runs
// out, Respond is consulted, and failing that Default is returned.
type FakeBackend struct {
	Replies []string
	Errors  []error
	Default string

	// Respond, when set, answers prompts not covered by the script.
	Respond func(prompt string) (string, error)

	mu       sync.Mutex
	Prompts  []string
	Uploaded []string
	Deleted  []string
}

// Generate implements Backend.
func (f *FakeBackend) Generate(_ context.Context, req Request) (Response, error) {
	f.mu.Lock()
	idx := len(f.Prompts)
	f.Prompts = append(f.Prompts, req.Prompt)
	f.mu.Unlock()

	if idx < len(f.Errors) && f.Errors[idx] != nil {
		return Response{}, f.Errors[idx]
	}
	if idx < len(f.Replies) {
		return Response{Text: f.Replies[idx]}, nil
	}
	if f.Respond != nil {
		text, err := f.Respond(req.Prompt)
		return Response{Text: text}, err
	}
	return Response{Text: f.Default}, nil
}

// UploadFile implements Backend.
func (f *FakeBackend) UploadFile(_ context.Context, path, mimeType string) (FileRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploaded = append(f.Uploaded, path)
	return FileRef{Name: fmt.Sprintf("files/%d", len(f.Uploaded)), URI: "fake://" + path, MIMEType: mimeType}, nil
}

// DeleteFile implements Backend.
func (f *FakeBackend) DeleteFile(_ context.Context, ref FileRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, ref.Name)
	return nil
}

// PromptsContaining returns the recorded prompts that contain substr.
func (f *FakeBackend) PromptsContaining(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.Prompts {
		if strings.Contains(p, substr) {
			out = append(out, p)
		}
	}
	return out
}
