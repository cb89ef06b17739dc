// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/container"
	"github.com/pdiddy/slr-engine/internal/observability"
)

// fakeExtractor returns canned text or an error per PDF base name.
type fakeExtractor struct {
	outputs map[string]string
	errors  map[string]error
	calls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, pdfPath string) (string, error) {
	base := filepath.Base(pdfPath)
	f.calls = append(f.calls, base)
	if err, ok := f.errors[base]; ok {
		return "", err
	}
	if out, ok := f.outputs[base]; ok {
		return out, nil
	}
	return "", errors.New("unexpected path: " + pdfPath)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConvertPaper(t *testing.T) {
	tests := []struct {
		name       string
		extractor  *fakeExtractor
		existing   *string // content of a pre-existing text file
		wantStatus Status
		wantLog    string
		wantText   string // expected file content, "" means no file
	}{
		{
			name:       "successful conversion",
			extractor:  &fakeExtractor{outputs: map[string]string{"2301.07041.pdf": "Some text."}},
			wantStatus: StatusConverted,
			wantLog:    "converted:",
			wantText:   "Some text.",
		},
		{
			name:       "skip existing non-empty text",
			extractor:  &fakeExtractor{outputs: map[string]string{"2301.07041.pdf": "should not be called"}},
			existing:   ptr("existing"),
			wantStatus: StatusSkipped,
			wantLog:    "skipped:",
			wantText:   "existing",
		},
		{
			name:       "empty existing text is redone",
			extractor:  &fakeExtractor{outputs: map[string]string{"2301.07041.pdf": "fresh"}},
			existing:   ptr(""),
			wantStatus: StatusConverted,
			wantLog:    "converted:",
			wantText:   "fresh",
		},
		{
			name:       "whitespace extraction writes nothing",
			extractor:  &fakeExtractor{outputs: map[string]string{"2301.07041.pdf": " \n\t "}},
			wantStatus: StatusEmpty,
			wantLog:    "empty:",
		},
		{
			name:       "no-text error counts as empty",
			extractor:  &fakeExtractor{errors: map[string]error{"2301.07041.pdf": ErrNoText}},
			wantStatus: StatusEmpty,
			wantLog:    "empty:",
		},
		{
			name:       "extraction failure",
			extractor:  &fakeExtractor{errors: map[string]error{"2301.07041.pdf": ErrEncrypted}},
			wantStatus: StatusFailed,
			wantLog:    "failed:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			pdfPath := filepath.Join(dir, "pdf", "2301.07041.pdf")
			txtDir := filepath.Join(dir, "txt")
			writeFile(t, pdfPath, "%PDF-1.4")
			if tt.existing != nil {
				writeFile(t, filepath.Join(txtDir, "2301.07041.txt"), *tt.existing)
			}

			var out bytes.Buffer
			status := ConvertPaper(context.Background(), tt.extractor, pdfPath, txtDir, zerolog.Nop(), &out)

			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if !strings.Contains(out.String(), tt.wantLog) {
				t.Errorf("output %q does not contain %q", out.String(), tt.wantLog)
			}

			data, err := os.ReadFile(filepath.Join(txtDir, "2301.07041.txt"))
			if tt.wantText == "" {
				if err == nil && len(data) > 0 {
					t.Errorf("expected no text file, found %q", data)
				}
				return
			}
			if err != nil {
				t.Fatalf("reading output: %v", err)
			}
			if string(data) != tt.wantText {
				t.Errorf("text = %q, want %q", data, tt.wantText)
			}
		})
	}
}

func TestConvertFolder(t *testing.T) {
	dir := t.TempDir()
	pdfDir := filepath.Join(dir, "pdf_papers")
	txtDir := filepath.Join(dir, "txt_papers")
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf", "d.PDF", "notes.txt"} {
		writeFile(t, filepath.Join(pdfDir, name), "%PDF-1.4")
	}
	writeFile(t, filepath.Join(txtDir, "b.txt"), "existing")

	ex := &fakeExtractor{
		outputs: map[string]string{"a.pdf": "Paper A", "b.pdf": "Paper B", "d.PDF": "   "},
		errors:  map[string]error{"c.pdf": errors.New("bad pdf")},
	}

	var out bytes.Buffer
	result := ConvertFolder(context.Background(), ex, pdfDir, txtDir, zerolog.Nop(), &out)

	want := BatchResult{Converted: 1, Skipped: 1, Empty: 1, Failed: 1}
	if result != want {
		t.Errorf("result = %+v, want %+v", result, want)
	}
	if !result.HasFailures() || result.Total() != 4 {
		t.Errorf("HasFailures=%v Total=%d", result.HasFailures(), result.Total())
	}
	if !strings.Contains(out.String(), "Batch summary: 1 converted, 1 skipped, 1 empty, 1 failed (total: 4)") {
		t.Errorf("missing summary line in %q", out.String())
	}
	if fmt.Sprint(ex.calls) != "[a.pdf c.pdf d.PDF]" {
		t.Errorf("extractor calls = %v", ex.calls)
	}
	if _, err := os.Stat(filepath.Join(txtDir, "d.txt")); !os.IsNotExist(err) {
		t.Error("empty extraction must not leave a text file")
	}

	// A second pass converts nothing new.
	out.Reset()
	again := ConvertFolder(context.Background(), ex, pdfDir, txtDir, zerolog.Nop(), &out)
	if again.Converted != 0 || again.Skipped != 2 {
		t.Errorf("second pass = %+v, want 0 converted and 2 skipped", again)
	}
}

func TestConvertFolderMissingDir(t *testing.T) {
	var out bytes.Buffer
	result := ConvertFolder(context.Background(), &fakeExtractor{}, filepath.Join(t.TempDir(), "none"), t.TempDir(), zerolog.Nop(), &out)
	if result.Total() != 0 {
		t.Errorf("total = %d, want 0", result.Total())
	}
}

func TestBatchResultObserve(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	BatchResult{Converted: 2, Failed: 1}.Observe(m)
	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("converted")); got != 2 {
		t.Errorf("converted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Conversions.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestChain(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "x.pdf")
	tests := []struct {
		name    string
		chain   Chain
		want    string
		wantErr error
	}{
		{
			name: "first non-empty wins",
			chain: Chain{
				&fakeExtractor{outputs: map[string]string{"x.pdf": "  "}},
				&fakeExtractor{outputs: map[string]string{"x.pdf": "ocr text"}},
			},
			want: "ocr text",
		},
		{
			name: "falls through errors",
			chain: Chain{
				&fakeExtractor{errors: map[string]error{"x.pdf": ErrEncrypted}},
				&fakeExtractor{outputs: map[string]string{"x.pdf": "ok"}},
			},
			want: "ok",
		},
		{
			name: "last error returned",
			chain: Chain{
				&fakeExtractor{errors: map[string]error{"x.pdf": ErrNoText}},
				&fakeExtractor{errors: map[string]error{"x.pdf": ErrEncrypted}},
			},
			wantErr: ErrEncrypted,
		},
		{
			name:    "empty chain",
			wantErr: ErrNoText,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.chain.Extract(context.Background(), pdf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPDFExtractorRejectsNonPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.pdf")
	writeFile(t, path, "this is not a pdf")

	ex := NewPDFExtractor(zerolog.Nop())
	if _, err := ex.Extract(context.Background(), path); err == nil {
		t.Error("expected error for non-PDF input")
	}
	if _, err := ex.Extract(context.Background(), filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
}

// fakeToolchain emulates pdftoppm by writing page images into the work
// dir, and tesseract by echoing per-page text.
type fakeToolchain struct {
	pages     int
	pageText  map[string]string
	failPages map[string]bool
	renderErr error
	calls     []string
}

func (f *fakeToolchain) Name() string { return "fake" }

func (f *fakeToolchain) Run(_ context.Context, workDir, tool string, args []string, stdout io.Writer) error {
	f.calls = append(f.calls, tool+" "+strings.Join(args, " "))
	switch tool {
	case toolPdftoppm:
		if f.renderErr != nil {
			return f.renderErr
		}
		if _, err := os.Stat(filepath.Join(workDir, "input.pdf")); err != nil {
			return err
		}
		for i := 1; i <= f.pages; i++ {
			name := fmt.Sprintf("page-%02d.png", i)
			if err := os.WriteFile(filepath.Join(workDir, name), []byte("png"), 0o644); err != nil {
				return err
			}
		}
		return nil
	case toolTesseract:
		if f.failPages[args[0]] {
			return errors.New("tesseract crashed")
		}
		_, err := io.WriteString(stdout, f.pageText[args[0]])
		return err
	}
	return fmt.Errorf("unknown tool %s", tool)
}

func TestOCRExtractor(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "scopus_10.1000_x.pdf")
	writeFile(t, pdf, "%PDF-1.4")

	tools := &fakeToolchain{
		pages: 11,
		pageText: map[string]string{
			"page-01.png": "first page",
			"page-02.png": "second page",
			"page-10.png": "tenth page",
		},
		failPages: map[string]bool{"page-03.png": true},
	}
	ex := NewOCRExtractor(tools, 0, "", zerolog.Nop())

	text, err := ex.Extract(context.Background(), pdf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(text, "\n\n--- Page 1 ---\nfirst page\n\n--- Page 2 ---\nsecond page") {
		t.Errorf("unexpected text start: %q", text)
	}
	if strings.Contains(text, "--- Page 3 ---") {
		t.Error("failed page should be skipped")
	}
	if !strings.Contains(text, "--- Page 10 ---\ntenth page") {
		t.Error("page 10 should follow page 9 in numeric order")
	}
	if strings.Index(text, "--- Page 9 ---") > strings.Index(text, "--- Page 10 ---") {
		t.Error("pages out of order")
	}
	if tools.calls[0] != "pdftoppm -r 300 -png input.pdf page" {
		t.Errorf("render call = %q", tools.calls[0])
	}
	if tools.calls[1] != "tesseract page-01.png stdout -l eng" {
		t.Errorf("ocr call = %q", tools.calls[1])
	}
}

func TestOCROptionsAndFailures(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	writeFile(t, pdf, "%PDF-1.4")

	tools := &fakeToolchain{pages: 1, pageText: map[string]string{"page-01.png": "hello"}}
	text, err := NewOCRExtractor(tools, 150, "deu", zerolog.Nop()).Extract(context.Background(), pdf)
	if err != nil {
		t.Fatal(err)
	}
	if text != "\n\n--- Page 1 ---\nhello" {
		t.Errorf("text = %q", text)
	}
	if tools.calls[0] != "pdftoppm -r 150 -png input.pdf page" || tools.calls[1] != "tesseract page-01.png stdout -l deu" {
		t.Errorf("calls = %q", tools.calls)
	}

	if _, err := NewOCRExtractor(&fakeToolchain{pages: 2}, 0, "", zerolog.Nop()).Extract(context.Background(), pdf); !errors.Is(err, ErrNoText) {
		t.Errorf("blank pages: err = %v, want ErrNoText", err)
	}

	broken := NewOCRExtractor(&fakeToolchain{renderErr: errors.New("pdftoppm missing")}, 0, "", zerolog.Nop())
	if _, err := broken.Extract(context.Background(), pdf); err == nil || !strings.Contains(err.Error(), "pdftoppm missing") {
		t.Errorf("render failure: err = %v", err)
	}
}

func ptr(s string) *string { return &s }

// fakeRuntime records the job it ran and prints output.
type fakeRuntime struct {
	imageErr error
	output   string
	job      container.Job
}

func (f *fakeRuntime) Name() string { return "docker" }

func (f *fakeRuntime) ImageExists(string) error { return f.imageErr }

func (f *fakeRuntime) Run(_ context.Context, job container.Job, _ io.Reader, stdout io.Writer) error {
	f.job = job
	_, err := io.WriteString(stdout, f.output)
	return err
}

func TestImageExtractor(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	writeFile(t, pdf, "%PDF-1.4")

	if _, err := NewImageExtractor(&fakeRuntime{imageErr: errors.New("missing")}, ""); err == nil {
		t.Error("expected error when image is missing")
	}

	rt := &fakeRuntime{output: "# Title\n\nBody\n\n"}
	ex, err := NewImageExtractor(rt, "")
	if err != nil {
		t.Fatal(err)
	}
	text, err := ex.Extract(context.Background(), pdf)
	if err != nil || text != "# Title\n\nBody\n" {
		t.Errorf("Extract = %q, %v", text, err)
	}
	if rt.job.Image != DefaultTextImage || rt.job.MountHost != dir || len(rt.job.Args) != 1 || rt.job.Args[0] != "a.pdf" {
		t.Errorf("job = %+v", rt.job)
	}

	if _, err := ex.Extract(context.Background(), filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for a missing PDF")
	}

	empty, _ := NewImageExtractor(&fakeRuntime{output: "\n"}, "markitdown:latest")
	if _, err := empty.Extract(context.Background(), pdf); !errors.Is(err, ErrNoText) {
		t.Errorf("err = %v, want ErrNoText", err)
	}
}
