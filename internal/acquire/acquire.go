// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads paper PDFs and writes the per-record files that
// accompany them: the run's metadata.txt log, YAML sidecars, and abstract
// fallback text files.
package acquire

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/slr-engine/internal/httputil"
)

// DesktopUserAgent is sent with PDF downloads; several hosts refuse
// requests from non-browser agents.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// DefaultTimeout bounds a single download when none is configured.
const DefaultTimeout = 60 * time.Second

// ErrNotPDF is returned when a download succeeds but the body is not a PDF.
var ErrNotPDF = errors.New("response is not a PDF")

var pdfMagic = []byte("%PDF-")

// Downloader fetches files to disk through a temporary file so that a
// failed download never leaves a partial file behind.
type Downloader struct {
	Client  *http.Client
	Timeout time.Duration

	// MaxRetries is passed to httputil.DoWithRetry for 429/503 responses.
	MaxRetries int
}

// NewDownloader returns a Downloader with the given per-download timeout.
func NewDownloader(client *http.Client, timeout time.Duration) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Downloader{Client: client, Timeout: timeout, MaxRetries: 2}
}

// DownloadPDF fetches url into destPath. header adds or overrides request
// headers; User-Agent defaults to DesktopUserAgent and Accept to
// application/pdf. The body must start with the PDF magic bytes.
func (d *Downloader) DownloadPDF(ctx context.Context, url, destPath string, header http.Header) error {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", DesktopUserAgent)
	req.Header.Set("Accept", "application/pdf")
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := httputil.DoWithRetry(ctx, d.Client, req, d.MaxRetries)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	body := bufio.NewReader(resp.Body)
	head, _ := body.Peek(len(pdfMagic))
	if !bytes.Equal(head, pdfMagic) {
		return fmt.Errorf("%s: %w", url, ErrNotPDF)
	}

	return writeAtomic(destPath, body)
}

// writeAtomic copies r to destPath via a temporary file in the same
// directory. The temporary file is removed on any failure.
func writeAtomic(destPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".acquire-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, r)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
