// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sections

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/llm"
)

// OutlineFile is the outline's file name in the results directory.
const OutlineFile = "slr_high_level_outline.txt"

// ErrGeneration marks a section whose LLM reply was an error or skip text.
var ErrGeneration = errors.New("section generation failed")

// Draft maps each section to its generated LaTeX.
type Draft map[Kind]string

// InOrder returns the section bodies in document order, skipping empty ones.
func (d Draft) InOrder() []string {
	var out []string
	for _, k := range DocumentOrder() {
		if body := strings.TrimSpace(d[k]); body != "" {
			out = append(out, d[k])
		}
	}
	return out
}

// Writer generates sections and writes each to the results directory.
type Writer struct {
	llm llm.Generator
	dir string
	log zerolog.Logger
}

// NewWriter returns a Writer that saves files into resultsDir.
func NewWriter(g llm.Generator, resultsDir string, log zerolog.Logger) *Writer {
	return &Writer{llm: g, dir: resultsDir, log: log}
}

// Outline generates the high-level outline and writes OutlineFile.
func (w *Writer) Outline(ctx context.Context, b Outline) (string, error) {
	prompt, err := b.Prompt()
	if err != nil {
		return "", err
	}
	text, err := w.ask(ctx, "outline", prompt)
	if err != nil {
		return "", err
	}
	return text, w.write(OutlineFile, text)
}

// Section generates one section and writes <slug>.tex.
func (w *Writer) Section(ctx context.Context, b Builder) (string, error) {
	prompt, err := b.Prompt()
	if err != nil {
		return "", err
	}
	text, err := w.ask(ctx, string(b.Kind()), prompt)
	if err != nil {
		return "", err
	}
	return text, w.write(b.Kind().FileName(), text)
}

// Draft generates every section in GenerationOrder, feeding each the
// sections before it. A failed section is left empty and generation
// continues; the returned error joins every failure.
func (w *Writer) Draft(ctx context.Context, c Context) (Draft, error) {
	d := Draft{}
	var errs []error
	for _, k := range GenerationOrder() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		text, err := w.Section(ctx, builderFor(k, c, d))
		if err != nil {
			w.log.Warn().Err(err).Str("section", string(k)).Msg("section not generated")
			errs = append(errs, err)
			continue
		}
		d[k] = text
	}
	return d, errors.Join(errs...)
}

func builderFor(k Kind, c Context, d Draft) Builder {
	prior := Prior{
		RelatedWorks:         d[KindRelatedWorks],
		ResearchMethods:      d[KindResearchMethods],
		ReviewFindings:       d[KindReviewFindings],
		DiscussionConclusion: d[KindDiscussionConclusion],
	}
	switch k {
	case KindRelatedWorks:
		return RelatedWorks{Context: c}
	case KindResearchMethods:
		return ResearchMethods{Context: c, RelatedWorks: prior.RelatedWorks}
	case KindReviewFindings:
		return ReviewFindings{Context: c, ResearchMethods: prior.ResearchMethods}
	case KindDiscussionConclusion:
		return DiscussionConclusion{Context: c, ReviewFindings: prior.ReviewFindings}
	case KindBackground:
		return Background{Context: c, Prior: prior}
	default:
		return AbstractIntro{Context: c, Prior: prior}
	}
}

func (w *Writer) ask(ctx context.Context, name, prompt string) (string, error) {
	reply := w.llm.Generate(ctx, prompt)
	if llm.IsErrorText(reply) || strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: %s: %s", ErrGeneration, name, firstLine(reply))
	}
	w.log.Info().Str("section", name).Int("chars", len(reply)).Msg("section generated")
	return reply, nil
}

func (w *Writer) write(name, text string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
