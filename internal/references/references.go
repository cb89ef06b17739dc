// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package references pulls reference candidates (title, authors, year)
// out of paper text. Extraction is lossy: candidates are search hints for
// snowballing, not verified bibliography entries.
package references

import (
	"bytes"
	"context"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/llm"
)

// Candidate is one reference parsed from a paper.
type Candidate struct {
	Title   string   `json:"title" yaml:"title"`
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year    int      `json:"year,omitempty" yaml:"year,omitempty"`
}

// Extractor returns the reference candidates found in text.
type Extractor interface {
	Extract(ctx context.Context, text string) []Candidate
}

// DefaultTailChars is how much of the end of a paper is sent to the
// isolator.
const DefaultTailChars = 30000

var isolatePromptTmpl = template.Must(template.New("isolate").Parse(`The text below is the end of an academic paper. Copy its References (or Bibliography) section verbatim, one entry per line, and nothing else. If there is no such section, answer with an empty reply.

Paper text:
{{.Text}}
`))

// HeuristicExtractor asks the LLM to isolate the references section, then
// tries each strategy in turn until one yields candidates. When the
// isolated section yields nothing the full text is parsed instead.
type HeuristicExtractor struct {
	// Isolator is optional; without it the section is located by heading.
	Isolator   llm.Generator
	Strategies []Strategy
	TailChars  int
	Log        zerolog.Logger
}

// NewHeuristicExtractor returns an extractor with the default strategies.
func NewHeuristicExtractor(isolator llm.Generator, log zerolog.Logger) *HeuristicExtractor {
	return &HeuristicExtractor{
		Isolator:   isolator,
		Strategies: DefaultStrategies(),
		TailChars:  DefaultTailChars,
		Log:        log,
	}
}

// Extract implements Extractor. Candidates are deduplicated by
// lowercase title, first occurrence wins.
func (h *HeuristicExtractor) Extract(ctx context.Context, text string) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	section := h.isolate(ctx, text)
	if section == "" {
		section = FindSection(text)
	}

	var out []Candidate
	if section != "" {
		out = h.parse(section)
	}
	if len(out) == 0 {
		h.Log.Debug().Msg("no references in isolated section, parsing full text")
		out = h.parse(text)
	}
	return Dedupe(out)
}

func (h *HeuristicExtractor) parse(text string) []Candidate {
	for _, s := range h.Strategies {
		if found := s.Parse(text); len(found) > 0 {
			h.Log.Debug().Str("strategy", s.Name()).Int("candidates", len(found)).Msg("references parsed")
			return found
		}
	}
	return nil
}

func (h *HeuristicExtractor) isolate(ctx context.Context, text string) string {
	if h.Isolator == nil {
		return ""
	}
	tail := text
	if n := h.TailChars; n > 0 && len(tail) > n {
		start := len(tail) - n
		for start < len(tail) && !utf8.RuneStart(tail[start]) {
			start++
		}
		tail = tail[start:]
	}

	var buf bytes.Buffer
	if err := isolatePromptTmpl.Execute(&buf, struct{ Text string }{tail}); err != nil {
		return ""
	}
	reply := h.Isolator.Generate(ctx, buf.String())
	if llm.IsErrorText(reply) {
		h.Log.Warn().Str("reply", firstLine(reply)).Msg("reference isolation failed")
		return ""
	}
	return strings.TrimSpace(stripFences(reply))
}

// FindSection returns the text after the last line that reads
// "References" or "Bibliography", or "" when there is none.
func FindSection(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		h := strings.ToLower(strings.Trim(strings.TrimSpace(lines[i]), "#*:. 0123456789"))
		if h == "references" || h == "bibliography" || h == "reference list" {
			return strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
	}
	return ""
}

// Dedupe drops candidates whose lowercase title was already seen.
func Dedupe(in []Candidate) []Candidate {
	seen := make(map[string]bool, len(in))
	var out []Candidate
	for _, c := range in {
		key := strings.ToLower(strings.TrimSpace(c.Title))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
