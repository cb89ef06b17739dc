// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdiddy/slr-engine/pkg/types"
)

const fakePDF = "%PDF-1.4\nfake pdf content"

func TestDownloadPDF(t *testing.T) {
	var gotUA, gotAccept, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotKey = r.Header.Get("X-ELS-APIKey")
		w.Write([]byte(fakePDF))
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "pdf_papers", "arxiv_2301.07041.pdf")
	d := NewDownloader(ts.Client(), time.Second)
	header := http.Header{"X-ELS-APIKey": []string{"k"}}

	if err := d.DownloadPDF(context.Background(), ts.URL+"/paper.pdf", dest, header); err != nil {
		t.Fatalf("DownloadPDF: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if string(data) != fakePDF {
		t.Errorf("content = %q, want %q", data, fakePDF)
	}
	if gotUA != DesktopUserAgent {
		t.Errorf("User-Agent = %q, want desktop agent", gotUA)
	}
	if gotAccept != "application/pdf" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotKey != "k" {
		t.Errorf("X-ELS-APIKey = %q", gotKey)
	}
}

func TestDownloadPDFFailuresLeaveNoFile(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "HTTP error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "not a PDF",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("<html>access denied</html>"))
			},
			wantErr: ErrNotPDF,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			dir := t.TempDir()
			dest := filepath.Join(dir, "x.pdf")
			err := NewDownloader(ts.Client(), time.Second).DownloadPDF(context.Background(), ts.URL, dest, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("expected empty directory, found %d entries", len(entries))
			}
		})
	}
}

func TestDownloadPDFTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "slow.pdf")
	err := NewDownloader(ts.Client(), 50*time.Millisecond).DownloadPDF(context.Background(), ts.URL, dest, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("partial file left behind")
	}
}

func TestMetadataLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Results", "metadata.txt")
	log, err := CreateMetadataLog(path)
	if err != nil {
		t.Fatalf("CreateMetadataLog: %v", err)
	}

	err = log.Append(types.PaperRecord{
		Title:   "LLM Agents in Serious Games",
		Authors: []string{"Ada Lovelace", "Alan Turing"},
		URL:     "http://arxiv.org/abs/2301.07041v1",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := "ArXiv Paper Metadata\n" + metadataRule + "\n" +
		"Title: LLM Agents in Serious Games\n" +
		"Authors: Ada Lovelace, Alan Turing\n" +
		"DOI: N/A\n" +
		"URL: http://arxiv.org/abs/2301.07041v1\n" +
		"Journal Reference: N/A\n" +
		metadataRule + "\n"
	if string(data) != want {
		t.Errorf("metadata.txt =\n%s\nwant\n%s", data, want)
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arxiv_1.yaml")
	in := types.PaperRecord{
		Source:        types.SourceArxiv,
		PrimaryID:     "arxiv_1",
		Title:         "T",
		Authors:       []string{"A"},
		PublishedYear: 2023,
		SummaryText:   "not persisted",
	}
	if err := WriteSidecar(path, in); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	out, err := ReadSidecar(path)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if out.PrimaryID != in.PrimaryID || out.PublishedYear != 2023 || out.Source != types.SourceArxiv {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if out.SummaryText != "" {
		t.Error("summary text should not be persisted in sidecars")
	}
}

func TestWriteAbstract(t *testing.T) {
	dir := t.TempDir()
	p := types.PaperRecord{
		Title:         "A very long title about large language models in serious games for education",
		Authors:       []string{"Smith J."},
		PublishedYear: 2023,
		Abstract:      "  We study things.  ",
	}
	path, err := WriteAbstract(dir, "85012345678", p)
	if err != nil {
		t.Fatalf("WriteAbstract: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "85012345678_A_very_long_title") || !strings.HasSuffix(name, ".txt") {
		t.Errorf("file name = %q", name)
	}
	if got := len(strings.TrimSuffix(strings.TrimPrefix(name, "85012345678_"), ".txt")); got != 50 {
		t.Errorf("title part length = %d, want 50", got)
	}

	data, _ := os.ReadFile(path)
	want := "Title: " + p.Title + "\nAuthors: Smith J.\nYear: 2023\n\n--- ABSTRACT ---\n\nWe study things."
	if string(data) != want {
		t.Errorf("content =\n%q\nwant\n%q", data, want)
	}
}

func TestWriteAbstractEmpty(t *testing.T) {
	path, err := WriteAbstract(t.TempDir(), "1", types.PaperRecord{Title: "x"})
	if err != nil || path != "" {
		t.Errorf("WriteAbstract with no abstract = (%q, %v), want empty", path, err)
	}
}
