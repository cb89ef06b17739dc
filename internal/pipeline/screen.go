// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/convert"
	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/internal/relevance"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// Screener converts fetched records to text and summarizes them. It
// satisfies snowball.Screener.
type Screener struct {
	extractor  convert.Extractor
	summarizer *relevance.Summarizer
	txtDir     string
	log        zerolog.Logger
	metrics    *observability.Metrics
	out        io.Writer
}

// NewScreener returns a Screener writing text files to txtDir. ex may be
// nil when every record already carries a text file.
func NewScreener(ex convert.Extractor, s *relevance.Summarizer, txtDir string, log zerolog.Logger, m *observability.Metrics, out io.Writer) *Screener {
	if out == nil {
		out = io.Discard
	}
	return &Screener{extractor: ex, summarizer: s, txtDir: txtDir, log: log, metrics: observability.OrDiscard(m), out: out}
}

// Screen extracts text for records that have a PDF but no text file, then
// summarizes and classifies all of them.
func (s *Screener) Screen(ctx context.Context, subject string, records []types.PaperRecord) relevance.Outcome {
	prepared := make([]types.PaperRecord, 0, len(records))
	for _, rec := range records {
		if rec.TXTPath == "" && rec.PDFPath != "" && s.extractor != nil {
			log := observability.WithPaperContext(s.log, rec.PrimaryID, string(rec.Source))
			status := convert.ConvertPaper(ctx, s.extractor, rec.PDFPath, s.txtDir, log, s.out)
			s.metrics.Conversions.WithLabelValues(statusLabel(status)).Inc()
			if status == convert.StatusConverted || status == convert.StatusSkipped {
				rec.TXTPath = convert.TXTPath(rec.PDFPath, s.txtDir)
			}
		}
		prepared = append(prepared, rec)
	}
	return s.summarizer.Summarize(ctx, subject, relevance.LoadInputs(prepared, s.log))
}

func statusLabel(s convert.Status) string {
	switch s {
	case convert.StatusConverted:
		return "converted"
	case convert.StatusSkipped:
		return "skipped"
	case convert.StatusEmpty:
		return "empty"
	}
	return "failed"
}
