// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package snowball grows the relevant set by searching for the titles of
// references cited by papers already judged relevant. Discovery is best
// effort: relevance screening is the only quality gate.
package snowball

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/internal/references"
	"github.com/pdiddy/slr-engine/internal/relevance"
	"github.com/pdiddy/slr-engine/internal/search"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// Fetcher runs one search round. *search.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req search.Request, seen *search.SeenSet) search.Batch
}

// Screener converts and summarizes freshly fetched records and partitions
// them by verdict.
type Screener interface {
	Screen(ctx context.Context, subject string, records []types.PaperRecord) relevance.Outcome
}

// Result reports what one expansion did.
type Result struct {
	// Added holds the relevant records found through references.
	Added []types.PaperRecord

	// Screened partitions every record fetched, relevant or not.
	Screened relevance.Outcome

	ReferencesProcessed int
	Iterations          int
}

// Expander runs bounded snowball rounds.
type Expander struct {
	Subject   string
	StartYear int
	EndYear   int

	refs    references.Extractor
	fetch   Fetcher
	screen  Screener
	seen    *search.SeenSet
	cfg     types.SnowballConfig
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewExpander wires an Expander. seen must be the run's shared set so
// references already fetched by other rounds are not fetched again.
func NewExpander(refs references.Extractor, f Fetcher, s Screener, seen *search.SeenSet, cfg types.SnowballConfig, log zerolog.Logger, m *observability.Metrics) *Expander {
	return &Expander{
		refs:    refs,
		fetch:   f,
		screen:  s,
		seen:    seen,
		cfg:     cfg,
		log:     log,
		metrics: observability.OrDiscard(m),
	}
}

// Expand runs up to MaxIterations rounds starting from seeds. Each round
// searches every reference title of the current frontier with a limit of
// one paper; the relevant finds become the next frontier. Expansion stops
// early when a round fetches nothing or MaxPapersToAdd is reached.
func (e *Expander) Expand(ctx context.Context, seeds []types.PaperRecord) Result {
	var res Result
	if !e.cfg.Enabled || e.cfg.MaxIterations <= 0 || e.cfg.MaxPapersToAdd <= 0 {
		return res
	}

	frontier := seeds
	for iter := 1; iter <= e.cfg.MaxIterations && len(frontier) > 0; iter++ {
		if ctx.Err() != nil || e.remaining(res) <= 0 {
			break
		}
		res.Iterations = iter
		log := e.log.With().Int("iteration", iter).Int("frontier", len(frontier)).Logger()

		candidates := e.round(ctx, log, frontier, &res)
		if len(candidates) == 0 {
			log.Info().Msg("snowball round found no new papers")
			break
		}

		out := e.screen.Screen(ctx, e.Subject, candidates)
		res.Screened.Merge(out)

		relevant := out.Relevant
		if n := e.remaining(res); len(relevant) > n {
			relevant = relevant[:n]
		}
		res.Added = append(res.Added, relevant...)
		e.metrics.SnowballAdded.Add(float64(len(relevant)))
		log.Info().Int("fetched", len(candidates)).Int("relevant", len(relevant)).Msg("snowball round complete")

		frontier = relevant
	}
	return res
}

// round fetches at most one paper per reference of each frontier record.
// Fetching stops once enough candidates exist to fill the remaining quota.
func (e *Expander) round(ctx context.Context, log zerolog.Logger, frontier []types.PaperRecord, res *Result) []types.PaperRecord {
	var candidates []types.PaperRecord
	for _, paper := range frontier {
		if ctx.Err() != nil || len(candidates) >= e.remaining(*res) {
			break
		}
		cands := e.references(ctx, log, paper)
		if limit := e.cfg.MaxReferencesPerPaper; limit > 0 && len(cands) > limit {
			cands = cands[:limit]
		}

		for _, c := range cands {
			if ctx.Err() != nil || len(candidates) >= e.remaining(*res) {
				break
			}
			res.ReferencesProcessed++
			b := e.fetch.Fetch(ctx, search.Request{
				Query:     c.Title,
				StartYear: e.StartYear,
				EndYear:   e.EndYear,
				Limit:     1,
				Origin:    types.OriginSnowball,
			}, e.seen)
			candidates = append(candidates, b.Records...)
		}
	}
	return candidates
}

func (e *Expander) references(ctx context.Context, log zerolog.Logger, paper types.PaperRecord) []references.Candidate {
	if paper.TXTPath == "" {
		return nil
	}
	data, err := os.ReadFile(paper.TXTPath)
	if err != nil {
		log.Warn().Err(err).Str("primary_id", paper.PrimaryID).Msg("reading paper text for references")
		return nil
	}
	cands := e.refs.Extract(ctx, string(data))
	log.Debug().Str("primary_id", paper.PrimaryID).Int("references", len(cands)).Msg("references extracted")
	return cands
}

func (e *Expander) remaining(res Result) int {
	return e.cfg.MaxPapersToAdd - len(res.Added)
}
