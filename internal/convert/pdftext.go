// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// PDFExtractor reads the text layer of a PDF with ledongthuc/pdf. Pages
// that fail to decode are logged and skipped.
type PDFExtractor struct {
	Log zerolog.Logger
}

// NewPDFExtractor returns a PDFExtractor logging to log.
func NewPDFExtractor(log zerolog.Logger) *PDFExtractor {
	return &PDFExtractor{Log: log}
}

// Extract returns the concatenated page text. Encrypted files are opened
// with an empty password; when that fails Extract returns ErrEncrypted.
func (p *PDFExtractor) Extract(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", pdfPath, err)
	}

	r, err := openReader(f, info.Size())
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", fmt.Errorf("%s: %w", pdfPath, ErrEncrypted)
		}
		return "", fmt.Errorf("reading PDF %s: %w", pdfPath, err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := pageText(r, i)
		if err != nil {
			p.Log.Debug().Err(err).Str("pdf", pdfPath).Int("page", i).Msg("skipping page")
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "", ErrNoText
	}
	return out, nil
}

// openReader tries the empty password on encrypted files. The library
// panics on some malformed trailers, so that is reported as an error.
func openReader(f *os.File, size int64) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return pdf.NewReaderEncrypted(f, size, func() string { return "" })
}

func pageText(r *pdf.Reader, i int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", i, rec)
		}
	}()
	page := r.Page(i)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", i)
	}
	return page.GetPlainText(nil)
}
