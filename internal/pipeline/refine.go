// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/slr-engine/internal/assemble"
	"github.com/pdiddy/slr-engine/internal/critique"
	"github.com/pdiddy/slr-engine/internal/relevance"
	"github.com/pdiddy/slr-engine/internal/sections"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// RefineResult describes the drafts a refinement loop produced.
type RefineResult struct {
	// DocumentPath is the last assembled draft.
	DocumentPath string
	ReportPath   string
	BibPath      string
	Cycles       []critique.Cycle
}

// refine drafts the review for cycles 0..Refinement.Cycles. Every cycle but
// the last is critiqued and its report fed into the next cycle's prompts.
// The loop ends early when a critique is clean and rated at or above the
// stop rating. A cycle whose sections partly fail still assembles what it
// has.
func (p *Pipeline) refine(ctx context.Context, st *state) (RefineResult, error) {
	var res RefineResult
	cfg := st.cfg
	dir := cfg.Workspace.ResultsDir
	relevant := st.outcome.Relevant

	bib, err := assemble.WriteBibTeX(dir, relevant)
	if err != nil {
		return res, err
	}
	res.BibPath = bib

	writer := sections.NewWriter(p.llm, dir, st.log)
	critic := critique.NewCritic(p.llm, st.log)
	digest := relevance.Digest(relevant)

	outline, err := writer.Outline(ctx, sections.Outline{
		Subject: cfg.Subject, StartYear: cfg.StartYear, EndYear: cfg.EndYear, Summaries: digest,
	})
	if err != nil {
		st.log.Warn().Err(err).Msg("outline generation failed, drafting without it")
	}

	sc := sections.Context{
		Subject:      cfg.Subject,
		StartYear:    cfg.StartYear,
		EndYear:      cfg.EndYear,
		Summaries:    digest,
		Bibliography: bibliography(relevant),
		Outline:      outline,
	}

	var previous *types.CritiqueReport
	for cycle := 0; cycle <= cfg.Refinement.Cycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := st.log.With().Int("cycle", cycle).Logger()
		c := critique.Cycle{Number: cycle}

		sc.Critique = previous
		draft, err := writer.Draft(ctx, sc)
		if err != nil {
			log.Warn().Err(err).Msg("some sections failed")
			c.Err = err.Error()
		}

		doc := assemble.Document{Title: cfg.Subject, Records: relevant}
		for _, s := range draft.InOrder() {
			if missing := assemble.MissingPlaceholders(s, st.counts); len(missing) > 0 {
				log.Warn().Strs("placeholders", missing).Msg("draft uses unknown counts")
			}
			doc.Sections = append(doc.Sections, assemble.Substitute(s, st.counts))
		}
		path, err := assemble.WriteDocument(dir, doc, cycle)
		if err != nil {
			return res, err
		}
		p.metrics.RefinementCycles.Inc()
		res.DocumentPath = path
		c.DocumentPath = path
		fmt.Fprintf(p.Out, "cycle %d: %s\n", cycle, path)

		if unknown := assemble.UnknownCitations(strings.Join(doc.Sections, "\n"), relevant); len(unknown) > 0 {
			log.Warn().Strs("keys", unknown).Msg("draft cites unknown papers")
		}

		if cycle == cfg.Refinement.Cycles {
			res.Cycles = append(res.Cycles, c)
			break
		}

		report, _, err := critic.Review(ctx, cfg.Subject, doc.Render(), previous)
		if err != nil {
			log.Warn().Err(err).Msg("critique failed, next cycle drafts without new feedback")
			c.Err = joinErr(c.Err, err.Error())
			res.Cycles = append(res.Cycles, c)
			continue
		}
		c.Report = &report
		fmt.Fprintf(p.Out, "cycle %d critique: rating %s, %d issues, %d suggestions\n",
			cycle, report.Rating, len(report.NewIssues), report.SuggestionCount())

		if critique.ShouldStop(report, cfg.Refinement.StopRating) {
			c.Stopped = true
			res.Cycles = append(res.Cycles, c)
			log.Info().Str("rating", report.Rating).Msg("critique clean, stopping refinement")
			break
		}
		res.Cycles = append(res.Cycles, c)
		previous = &report
	}

	reportPath, err := critique.SaveReport(dir, cfg.Subject, res.Cycles)
	if err != nil {
		return res, err
	}
	res.ReportPath = reportPath
	return res, nil
}

// bibliography lists each relevant record under its citation key.
func bibliography(records []types.PaperRecord) string {
	var b strings.Builder
	for _, r := range records {
		fmt.Fprintf(&b, "[%s] %s\n", assemble.CitationKey(r), r.Citation())
	}
	return b.String()
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
