// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/slr-engine/internal/container"
)

// DefaultTextImage is the image ImageExtractor uses when none is named.
// Its entrypoint takes a PDF path and prints the text to stdout.
const DefaultTextImage = "markitdown:latest"

// ImageExtractor converts a PDF by running a text-extraction image over
// the folder that holds it.
type ImageExtractor struct {
	rt    container.Runtime
	image string
}

// NewImageExtractor fails when image has not been pulled into rt.
func NewImageExtractor(rt container.Runtime, image string) (*ImageExtractor, error) {
	if image == "" {
		image = DefaultTextImage
	}
	if err := rt.ImageExists(image); err != nil {
		return nil, err
	}
	return &ImageExtractor{rt: rt, image: image}, nil
}

// Extract mounts the PDF's folder at container.WorkMount and passes the
// file name to the image.
func (x *ImageExtractor) Extract(ctx context.Context, pdfPath string) (string, error) {
	abs, err := filepath.Abs(pdfPath)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("reading PDF: %w", err)
	}

	job := container.Job{
		Image:     x.image,
		MountHost: filepath.Dir(abs),
		Args:      []string{filepath.Base(abs)},
	}
	var out bytes.Buffer
	if err := x.rt.Run(ctx, job, nil, &out); err != nil {
		return "", fmt.Errorf("extracting %s: %w", filepath.Base(abs), err)
	}

	text := bytes.TrimSpace(out.Bytes())
	if len(text) == 0 {
		return "", ErrNoText
	}
	return string(text) + "\n", nil
}
