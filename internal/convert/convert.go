// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns downloaded PDFs into plain text files with
// pluggable backends: a pure-Go PDF text reader, page OCR through external
// tools, and container images that read a PDF on stdin.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/observability"
)

var (
	// ErrNoText means extraction finished but produced only whitespace.
	ErrNoText = errors.New("no extractable text")

	// ErrEncrypted means the PDF could not be opened with an empty password.
	ErrEncrypted = errors.New("encrypted PDF")
)

// Extractor transforms a PDF file into plain text.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (string, error)
}

// Chain tries each extractor in order and returns the first non-empty
// text. The last error is returned when every extractor fails.
type Chain []Extractor

func (c Chain) Extract(ctx context.Context, pdfPath string) (string, error) {
	err := ErrNoText
	for _, ex := range c {
		text, exErr := ex.Extract(ctx, pdfPath)
		if exErr == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if exErr != nil {
			err = exErr
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", err
}

// BatchResult holds the outcome of a folder conversion.
type BatchResult struct {
	Converted int
	Skipped   int
	Empty     int
	Failed    int
}

// Total returns the number of PDFs seen.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Empty + r.Failed
}

// HasFailures reports whether any PDF failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Observe adds the batch outcome to the conversion counters.
func (r BatchResult) Observe(m *observability.Metrics) {
	m = observability.OrDiscard(m)
	m.Conversions.WithLabelValues("converted").Add(float64(r.Converted))
	m.Conversions.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.Conversions.WithLabelValues("empty").Add(float64(r.Empty))
	m.Conversions.WithLabelValues("failed").Add(float64(r.Failed))
}

// Status is the outcome of converting one PDF.
type Status int

const (
	StatusConverted Status = iota
	StatusSkipped
	StatusEmpty
	StatusFailed
)

// TXTPath returns the text file path for pdfPath inside txtDir.
func TXTPath(pdfPath, txtDir string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(txtDir, base+".txt")
}

// ConvertPaper extracts one PDF into txtDir. An existing non-empty text
// file is kept. Empty extraction writes nothing.
func ConvertPaper(ctx context.Context, ex Extractor, pdfPath, txtDir string, log zerolog.Logger, w io.Writer) Status {
	txtPath := TXTPath(pdfPath, txtDir)
	base := strings.TrimSuffix(filepath.Base(txtPath), ".txt")

	if info, err := os.Stat(txtPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", base)
		return StatusSkipped
	}

	if err := os.MkdirAll(txtDir, 0o755); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return StatusFailed
	}

	text, err := ex.Extract(ctx, pdfPath)
	if errors.Is(err, ErrNoText) || (err == nil && strings.TrimSpace(text) == "") {
		log.Warn().Str("pdf", pdfPath).Msg("no text extracted")
		fmt.Fprintf(w, "empty:   %s\n", base)
		return StatusEmpty
	}
	if err != nil {
		log.Warn().Err(err).Str("pdf", pdfPath).Msg("extraction failed")
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return StatusFailed
	}

	if err := os.WriteFile(txtPath, []byte(text), 0o644); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", base, err)
		return StatusFailed
	}

	log.Debug().Str("pdf", pdfPath).Int("chars", len(text)).Msg("converted")
	fmt.Fprintf(w, "converted: %s\n", base)
	return StatusConverted
}

// ConvertFolder converts every .pdf in pdfDir into a same-named .txt in
// txtDir, printing per-file status to w and returning a summary. It stops
// early when ctx is cancelled.
func ConvertFolder(ctx context.Context, ex Extractor, pdfDir, txtDir string, log zerolog.Logger, w io.Writer) BatchResult {
	var result BatchResult

	pdfs, err := ListPDFs(pdfDir)
	if err != nil {
		log.Error().Err(err).Str("dir", pdfDir).Msg("listing PDFs")
		return result
	}

	for _, p := range pdfs {
		if ctx.Err() != nil {
			break
		}
		switch ConvertPaper(ctx, ex, p, txtDir, log, w) {
		case StatusConverted:
			result.Converted++
		case StatusSkipped:
			result.Skipped++
		case StatusEmpty:
			result.Empty++
		case StatusFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d empty, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Empty, result.Failed, result.Total())
	return result
}

// ListPDFs returns the .pdf files directly inside dir, sorted. A missing
// directory yields no files.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
