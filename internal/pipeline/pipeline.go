// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs a full review: query generation, multi-source
// fetching, screening, snowballing, supplementary rounds, and the
// draft/critique refinement loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/acquire"
	"github.com/pdiddy/slr-engine/internal/convert"
	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/internal/llm"
	"github.com/pdiddy/slr-engine/internal/observability"
	"github.com/pdiddy/slr-engine/internal/query"
	"github.com/pdiddy/slr-engine/internal/references"
	"github.com/pdiddy/slr-engine/internal/relevance"
	"github.com/pdiddy/slr-engine/internal/search"
	"github.com/pdiddy/slr-engine/internal/snowball"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// Recorder persists runs. *ledger.Store implements it.
type Recorder interface {
	BeginRun(ctx context.Context, r ledger.Run) error
	FinishRun(ctx context.Context, r ledger.Run) error
	RecordOutcome(ctx context.Context, runID string, o relevance.Outcome) error
}

// Pipeline holds the collaborators shared by every run.
type Pipeline struct {
	llm       llm.Generator
	sources   []search.Source
	extractor convert.Extractor
	log       zerolog.Logger
	metrics   *observability.Metrics

	// References extracts snowball candidates; nil uses the heuristic
	// extractor over the pipeline's LLM.
	References references.Extractor

	// Ledger, when set, records each run.
	Ledger Recorder

	// Out receives human-readable progress lines.
	Out io.Writer

	// NewRunID generates run identifiers.
	NewRunID func() string
}

// New returns a Pipeline. Sources are consulted in order each round; ex
// converts downloaded PDFs.
func New(g llm.Generator, sources []search.Source, ex convert.Extractor, log zerolog.Logger, m *observability.Metrics) *Pipeline {
	return &Pipeline{
		llm:       g,
		sources:   sources,
		extractor: ex,
		log:       log,
		metrics:   observability.OrDiscard(m),
		Out:       io.Discard,
		NewRunID:  uuid.NewString,
	}
}

// Result is the outcome of a successful run.
type Result struct {
	RunID        string
	DocumentPath string
	ReportPath   string
	BibPath      string
	Cycles       int
	Counts       types.Counts
	Relevant     []types.PaperRecord

	// SupplementaryRounds is the number of extra fetch rounds attempted.
	SupplementaryRounds int
}

// state is the mutable context of one run.
type state struct {
	cfg      types.PipelineConfig
	runID    string
	log      zerolog.Logger
	seen     *search.SeenSet
	fetcher  *search.Fetcher
	queries  *query.Generator
	screener *Screener
	history  []query.Angle
	outcome  relevance.Outcome
	counts   types.Counts
}

// Run executes the whole pipeline for cfg. Pipeline-level exhaustion is
// reported as *Error.
func (p *Pipeline) Run(ctx context.Context, cfg types.PipelineConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	runID := p.NewRunID()
	log := observability.WithRunContext(p.log, runID, cfg.Subject)

	st, err := p.begin(ctx, cfg, runID, log)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		return Result{RunID: runID}, err
	}

	res, err := p.run(ctx, st)
	st.tally()
	res.RunID = runID
	res.Counts = st.counts

	status := ledger.StatusSucceeded
	label := "ok"
	var errKind string
	if err != nil {
		status, label = ledger.StatusFailed, "error"
		if k, ok := KindOf(err); ok {
			errKind = k.String()
			label = errKind
		}
		log.Error().Err(err).Msg("run failed")
	}
	p.metrics.Runs.WithLabelValues(label).Inc()
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.finish(ctx, st, ledger.Run{
		ID:           runID,
		Status:       status,
		ErrorKind:    errKind,
		DocumentPath: res.DocumentPath,
		Cycles:       res.Cycles,
		Counts:       st.counts,
	})
	return res, err
}

func (p *Pipeline) begin(ctx context.Context, cfg types.PipelineConfig, runID string, log zerolog.Logger) (*state, error) {
	uploads, err := PrepareWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	if uploads > 0 {
		fmt.Fprintf(p.Out, "copied %d manual uploads\n", uploads)
	}

	metadata, err := acquire.CreateMetadataLog(filepath.Join(cfg.Workspace.ResultsDir, MetadataFile))
	if err != nil {
		return nil, err
	}
	fetcher := search.NewFetcher(p.sources, log, p.metrics, metadata)
	fetcher.SidecarDir = filepath.Join(cfg.Workspace.ResultsDir, RecordsDir)

	summarizer := relevance.NewSummarizer(p.llm, cfg.Workspace.SummariesDir, cfg.Relevance, log, p.metrics)

	if p.Ledger != nil {
		if err := p.Ledger.BeginRun(ctx, ledger.Run{
			ID: runID, Subject: cfg.Subject, StartYear: cfg.StartYear, EndYear: cfg.EndYear,
		}); err != nil {
			log.Warn().Err(err).Msg("recording run start")
		}
	}

	return &state{
		cfg:      cfg,
		runID:    runID,
		log:      log,
		seen:     search.NewSeenSet(cfg.Fetch.DedupeTitles),
		fetcher:  fetcher,
		queries:  query.NewGenerator(p.llm, log),
		screener: NewScreener(p.extractor, summarizer, cfg.Workspace.TXTDir, log, p.metrics, p.Out),
		counts:   newCounts(),
	}, nil
}

func (p *Pipeline) finish(ctx context.Context, st *state, r ledger.Run) {
	if p.Ledger == nil {
		return
	}
	if err := p.Ledger.RecordOutcome(ctx, st.runID, st.outcome); err != nil {
		st.log.Warn().Err(err).Msg("recording screened papers")
	}
	if err := p.Ledger.FinishRun(ctx, r); err != nil {
		st.log.Warn().Err(err).Msg("recording run result")
	}
}

func (p *Pipeline) run(ctx context.Context, st *state) (Result, error) {
	cfg := st.cfg

	angle, err := st.queries.Initial(ctx, cfg.Subject)
	if errors.Is(err, query.ErrUnsuitableGoal) {
		return Result{}, &Error{Kind: KindInvalidQuery}
	}
	st.history = append(st.history, angle)

	// Initial search rounds, one angle each.
	var fetched []types.PaperRecord
	for i := 0; i < cfg.Fetch.SearchIterations; i++ {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if i > 0 {
			angle = st.queries.Generate(ctx, cfg.Subject, st.history)
			st.history = append(st.history, angle)
		}
		b := st.fetcher.Fetch(ctx, st.request(angle.Query, cfg.Fetch.PapersPerIteration, ""), st.seen)
		fmt.Fprintf(p.Out, "search %d %q: %s\n", i+1, angle.Query, b.Status)
		fetched = append(fetched, b.Records...)
	}

	manual := (&search.ManualSource{Log: st.log}).Scan(cfg.Workspace.PDFDir, st.seen)
	if len(manual) > 0 {
		fmt.Fprintf(p.Out, "manual uploads: %d\n", len(manual))
	}
	fetched = append(fetched, manual...)

	st.identify(fetched)
	st.outcome.Merge(st.screener.Screen(ctx, cfg.Subject, fetched))
	fmt.Fprintf(p.Out, "screened %d: %d relevant\n", len(fetched), len(st.outcome.Relevant))

	p.expand(ctx, st)
	rounds := p.supplement(ctx, st)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	st.tally()
	if st.counts[types.CountIdentifiedTotal] == 0 {
		return Result{SupplementaryRounds: rounds}, &Error{Kind: KindNoPapersFound}
	}
	if len(st.outcome.Relevant) == 0 {
		return Result{SupplementaryRounds: rounds}, &Error{Kind: KindNoSummaries}
	}

	refined, err := p.refine(ctx, st)
	return Result{
		DocumentPath:        refined.DocumentPath,
		ReportPath:          refined.ReportPath,
		BibPath:             refined.BibPath,
		Cycles:              len(refined.Cycles),
		Relevant:            st.outcome.Relevant,
		SupplementaryRounds: rounds,
	}, err
}

func (p *Pipeline) expand(ctx context.Context, st *state) {
	refs := p.References
	if refs == nil {
		refs = references.NewHeuristicExtractor(p.llm, st.log)
	}
	e := snowball.NewExpander(refs, st.fetcher, st.screener, st.seen, st.cfg.Snowball, st.log, p.metrics)
	e.Subject, e.StartYear, e.EndYear = st.cfg.Subject, st.cfg.StartYear, st.cfg.EndYear

	res := e.Expand(ctx, st.outcome.Relevant)
	if res.Iterations == 0 {
		return
	}
	st.identify(res.Screened.Relevant)
	st.identify(res.Screened.Irrelevant)
	st.identify(res.Screened.Errored)
	st.outcome.Merge(res.Screened)
	fmt.Fprintf(p.Out, "snowball: %d references, %d added in %d iterations\n",
		res.ReferencesProcessed, len(res.Added), res.Iterations)
}

// supplement runs extra fetch rounds while fewer relevant papers than the
// target exist, each with a fresh query and a limit of
// min(still needed, per-iteration cap). A round that finds nothing still
// counts. It returns the number of rounds attempted.
func (p *Pipeline) supplement(ctx context.Context, st *state) int {
	sc := st.cfg.Supplementary
	rounds := 0
	for rounds < sc.MaxIterations && len(st.outcome.Relevant) < sc.MinRelevantTarget {
		if ctx.Err() != nil {
			break
		}
		rounds++
		p.metrics.SupplementaryRounds.Inc()

		limit := sc.MinRelevantTarget - len(st.outcome.Relevant)
		if sc.PerIterationCap > 0 {
			limit = min(limit, sc.PerIterationCap)
		}
		angle := st.queries.Generate(ctx, st.cfg.Subject, st.history)
		st.history = append(st.history, angle)
		log := st.log.With().Int("round", rounds).Str("query", angle.Query).Int("limit", limit).Logger()

		b := st.fetcher.Fetch(ctx, st.request(angle.Query, limit, types.OriginSupplementary), st.seen)
		fmt.Fprintf(p.Out, "supplementary %d %q: %s\n", rounds, angle.Query, b.Status)
		if len(b.Records) == 0 {
			log.Info().Msg("supplementary round fetched nothing")
			continue
		}
		st.identify(b.Records)
		out := st.screener.Screen(ctx, st.cfg.Subject, b.Records)
		st.outcome.Merge(out)
		log.Info().Int("fetched", len(b.Records)).Int("relevant", len(out.Relevant)).
			Int("total_relevant", len(st.outcome.Relevant)).Msg("supplementary round complete")
	}
	return rounds
}

func (st *state) request(q string, limit int, origin string) search.Request {
	return search.Request{
		Query:     q,
		StartYear: st.cfg.StartYear,
		EndYear:   st.cfg.EndYear,
		Limit:     limit,
		Origin:    origin,
	}
}

// identify counts records by source.
func (st *state) identify(records []types.PaperRecord) {
	for _, rec := range records {
		if key := types.IdentifiedKey(rec.Source); key != types.CountIdentifiedTotal {
			st.counts.Add(key, 1)
		}
		st.counts.Add(types.CountIdentifiedTotal, 1)
	}
}

// tally sets the screening counts from the cumulative outcome.
func (st *state) tally() {
	st.counts[types.CountDuplicatesRemoved] = st.seen.Duplicates()
	st.counts[types.CountScreened] = st.outcome.Screened()
	st.counts[types.CountExcludedIrrelevant] = len(st.outcome.Irrelevant)
	st.counts[types.CountExcludedError] = len(st.outcome.Errored)
	st.counts[types.CountIncluded] = len(st.outcome.Relevant)
}

// newCounts returns a tally with every key present so placeholders render
// zero rather than N/A.
func newCounts() types.Counts {
	c := types.Counts{}
	for _, k := range []string{
		types.CountIdentifiedArxiv, types.CountIdentifiedScopus, types.CountIdentifiedManual,
		types.CountIdentifiedSnowball, types.CountIdentifiedSupplementary, types.CountIdentifiedTotal,
		types.CountDuplicatesRemoved, types.CountScreened, types.CountExcludedIrrelevant,
		types.CountExcludedError, types.CountIncluded,
	} {
		c[k] = 0
	}
	return c
}
