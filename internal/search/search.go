// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search fetches candidate papers from arXiv, Scopus, and the
// manual upload folder. All sources share one SeenSet, which is the only
// cross-source dedup mechanism: an arXiv ID and a Scopus DOI for the same
// work are different primary IDs unless title dedup is enabled.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// Request is one fetch round.
type Request struct {
	Query     string
	StartYear int
	EndYear   int

	// Limit is the number of new records wanted.
	Limit int

	// Origin tags the records' source ("snowball", "supplementary", or "").
	Origin string
}

// InRange reports whether year lies in [StartYear, EndYear]. A zero bound
// is open.
func (r Request) InRange(year int) bool {
	if year <= 0 {
		return false
	}
	if r.StartYear > 0 && year < r.StartYear {
		return false
	}
	if r.EndYear > 0 && year > r.EndYear {
		return false
	}
	return true
}

// Batch is the outcome of one source fetch.
type Batch struct {
	Records []types.PaperRecord

	// Skipped counts hits rejected for missing data, year range, or
	// duplicate IDs.
	Skipped int

	// Status is a one-line human summary.
	Status string
}

// Source fetches new records for a request. Implementations must consult
// seen before downloading and add every record they return to it.
// Records accumulated before a failure are returned with the error.
type Source interface {
	Name() types.Source
	Fetch(ctx context.Context, req Request, seen *SeenSet) (Batch, error)
}

// Fetcher runs sources in order, giving each the quota the previous ones
// left unfilled.
type Fetcher struct {
	sources  []Source
	log      zerolog.Logger
	metrics  *observability.Metrics
	metadata *acquire.MetadataLog

	// SidecarDir, when set, receives a YAML sidecar per accepted record.
	SidecarDir string
}

// NewFetcher returns a Fetcher over sources. metadata may be nil.
func NewFetcher(sources []Source, log zerolog.Logger, m *observability.Metrics, metadata *acquire.MetadataLog) *Fetcher {
	return &Fetcher{sources: sources, log: log, metrics: observability.OrDiscard(m), metadata: metadata}
}

// Sources returns the configured sources in order.
func (f *Fetcher) Sources() []Source { return f.sources }

// Fetch runs one round across all sources. Source errors are logged and
// the round continues with whatever the source accumulated.
func (f *Fetcher) Fetch(ctx context.Context, req Request, seen *SeenSet) Batch {
	var out Batch
	var status []string

	for _, src := range f.sources {
		remaining := req.Limit - len(out.Records)
		if remaining <= 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}

		sub := req
		sub.Limit = remaining
		log := f.log.With().Str("source", string(src.Name())).Str("query", req.Query).Logger()

		dupsBefore := seen.Duplicates()
		b, err := src.Fetch(ctx, sub, seen)
		f.metrics.DuplicatesSkipped.Add(float64(seen.Duplicates() - dupsBefore))
		if err != nil {
			f.metrics.FetchErrors.WithLabelValues(string(src.Name())).Inc()
			log.Warn().Err(err).Int("records", len(b.Records)).Msg("source fetch failed")
		}
		if len(b.Records) > remaining {
			b.Records = b.Records[:remaining]
		}

		for _, rec := range b.Records {
			f.accept(log, rec)
		}
		f.metrics.PapersFetched.WithLabelValues(string(src.Name())).Add(float64(len(b.Records)))
		out.Records = append(out.Records, b.Records...)
		out.Skipped += b.Skipped
		status = append(status, fmt.Sprintf("%s: %d", src.Name(), len(b.Records)))
		log.Info().Int("records", len(b.Records)).Int("skipped", b.Skipped).Msg("source fetch complete")
	}

	out.Status = fmt.Sprintf("fetched %d of %d (%s)", len(out.Records), req.Limit, strings.Join(status, ", "))
	return out
}

func (f *Fetcher) accept(log zerolog.Logger, rec types.PaperRecord) {
	if err := f.metadata.Append(rec); err != nil {
		log.Warn().Err(err).Str("primary_id", rec.PrimaryID).Msg("appending metadata")
	}
	if f.SidecarDir != "" {
		path := filepath.Join(f.SidecarDir, rec.PrimaryID+".yaml")
		if err := acquire.WriteSidecar(path, rec); err != nil {
			log.Warn().Err(err).Str("primary_id", rec.PrimaryID).Msg("writing sidecar")
		}
	}
}

// FormatTable writes records as a human-readable table to w.
func FormatTable(records []types.PaperRecord, w io.Writer) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No papers fetched.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %s\n", "#", "Title", "Authors", "Year", "Primary ID")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for i, r := range records {
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4d  %s\n",
			i+1, truncate(r.Title, 60), formatAuthors(r.Authors), r.PublishedYear, r.PrimaryID)
	}
	fmt.Fprintf(w, "\n%d papers\n", len(records))
}

// FormatJSON writes records as indented JSON to w.
func FormatJSON(records []types.PaperRecord, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
