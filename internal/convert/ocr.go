// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/container"
)

const (
	toolPdftoppm  = "pdftoppm"
	toolTesseract = "tesseract"

	defaultDPI      = 300
	defaultLanguage = "eng"
)

// OCRTools lists the binaries an OCRExtractor needs.
var OCRTools = []string{toolPdftoppm, toolTesseract}

var pageImagePattern = regexp.MustCompile(`^page-0*(\d+)\.png$`)

// OCRExtractor renders each PDF page to an image with pdftoppm and runs
// tesseract over it. Page texts are joined with "--- Page N ---" markers.
type OCRExtractor struct {
	Tools    container.Toolchain
	DPI      int
	Language string
	Log      zerolog.Logger
}

// NewOCRExtractor returns an OCRExtractor using tools. Zero dpi and an
// empty language select 300 and "eng".
func NewOCRExtractor(tools container.Toolchain, dpi int, language string, log zerolog.Logger) *OCRExtractor {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	if language == "" {
		language = defaultLanguage
	}
	return &OCRExtractor{Tools: tools, DPI: dpi, Language: language, Log: log}
}

// Extract runs OCR over every page of pdfPath in a scratch directory.
func (o *OCRExtractor) Extract(ctx context.Context, pdfPath string) (string, error) {
	work, err := os.MkdirTemp("", "slr-ocr-*")
	if err != nil {
		return "", fmt.Errorf("creating OCR work dir: %w", err)
	}
	defer os.RemoveAll(work)

	if err := copyFile(pdfPath, filepath.Join(work, "input.pdf")); err != nil {
		return "", err
	}

	render := []string{"-r", strconv.Itoa(o.DPI), "-png", "input.pdf", "page"}
	if err := o.Tools.Run(ctx, work, toolPdftoppm, render, io.Discard); err != nil {
		return "", fmt.Errorf("rendering %s: %w", pdfPath, err)
	}

	pages, err := pageImages(work)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	found := false
	for _, pg := range pages {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var out bytes.Buffer
		args := []string{pg.file, "stdout", "-l", o.Language}
		if err := o.Tools.Run(ctx, work, toolTesseract, args, &out); err != nil {
			o.Log.Debug().Err(err).Str("pdf", pdfPath).Int("page", pg.num).Msg("OCR failed for page")
			continue
		}
		if strings.TrimSpace(out.String()) != "" {
			found = true
		}
		fmt.Fprintf(&b, "\n\n--- Page %d ---\n", pg.num)
		b.WriteString(out.String())
	}

	if !found {
		return "", ErrNoText
	}
	return b.String(), nil
}

type pageImage struct {
	num  int
	file string
}

// pageImages lists pdftoppm output in page order. pdftoppm zero-pads the
// page number to the width of the page count.
func pageImages(dir string) ([]pageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing page images: %w", err)
	}
	var pages []pageImage
	for _, e := range entries {
		m := pageImagePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, pageImage{num: n, file: e.Name()})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].num < pages[j].num })
	return pages, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
