// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"path/filepath"
	"strconv"
	"strings"
)

// Source identifies where a PaperRecord came from. Derived sources carry a
// suffix naming the pipeline stage that found them (e.g. "arxiv_snowball").
type Source string

const (
	SourceArxiv  Source = "arxiv"
	SourceScopus Source = "scopus"
	SourceManual Source = "manual"
)

// Origin suffixes appended to a base source by later pipeline stages.
const (
	OriginSnowball      = "snowball"
	OriginSupplementary = "supplementary"
)

// WithSuffix returns the source tagged with a pipeline origin. An empty
// suffix returns the source unchanged.
func (s Source) WithSuffix(suffix string) Source {
	if suffix == "" {
		return s
	}
	return Source(string(s.Base()) + "_" + suffix)
}

// Base strips any origin suffix ("scopus_snowball" -> "scopus").
func (s Source) Base() Source {
	if i := strings.IndexByte(string(s), '_'); i > 0 {
		return s[:i]
	}
	return s
}

// PaperRecord is one candidate document moving through the pipeline.
// PrimaryID is the dedup key: sanitized and source-prefixed.
type PaperRecord struct {
	// Source is the fetch path that produced the record.
	Source Source `json:"source" yaml:"source"`

	// PrimaryID is unique within a run's seen-ID set (e.g. "arxiv_2301.07041").
	PrimaryID string `json:"primary_id" yaml:"primary_id"`

	Title         string   `json:"title" yaml:"title"`
	Authors       []string `json:"authors" yaml:"authors"`
	PublishedYear int      `json:"published_year" yaml:"published_year"`
	DOI           string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL           string   `json:"url,omitempty" yaml:"url,omitempty"`
	JournalRef    string   `json:"journal_ref,omitempty" yaml:"journal_ref,omitempty"`
	Abstract      string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// PDFPath is empty when only text (OCR or abstract) could be obtained.
	PDFPath string `json:"pdf_path,omitempty" yaml:"pdf_path,omitempty"`

	// TXTPath points at the extracted or fallback text file.
	TXTPath string `json:"txt_path,omitempty" yaml:"txt_path,omitempty"`

	SummaryPath string `json:"summary_path,omitempty" yaml:"summary_path,omitempty"`
	SummaryText string `json:"-" yaml:"-"`

	// Score is an optional ranking signal; nil when never scored.
	Score *float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

// FileBase returns the base name shared by the record's PDF, text, and
// summary files. Records without local files fall back to PrimaryID.
func (p PaperRecord) FileBase() string {
	for _, path := range []string{p.TXTPath, p.PDFPath} {
		if path != "" {
			base := filepath.Base(path)
			return strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
	return p.PrimaryID
}

// Citation renders the record as a one-line reference used in prompts.
func (p PaperRecord) Citation() string {
	var b strings.Builder
	if len(p.Authors) > 0 {
		b.WriteString(strings.Join(p.Authors, ", "))
		b.WriteString(". ")
	}
	b.WriteString(p.Title)
	if p.PublishedYear > 0 {
		b.WriteString(" (")
		b.WriteString(strconv.Itoa(p.PublishedYear))
		b.WriteString(")")
	}
	if p.DOI != "" {
		b.WriteString(". doi:")
		b.WriteString(p.DOI)
	} else if p.URL != "" {
		b.WriteString(". ")
		b.WriteString(p.URL)
	}
	return b.String()
}
