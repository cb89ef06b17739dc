// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package critique asks the LLM to review an assembled draft, parses the
// labelled reply into a CritiqueReport, and decides when refinement stops.
package critique

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/llm"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// DefaultStopRating is the rating at or above which a clean critique ends
// refinement.
const DefaultStopRating = 8

// Reply labels, one per CritiqueReport field.
const (
	LabelRating    = "RATING:"
	LabelAddressed = "ADDRESSED POINTS:"
	LabelNewIssues = "NEW ISSUES:"
	LabelBySection = "SUGGESTIONS BY SECTION:"
	LabelGeneral   = "GENERAL SUGGESTIONS:"
)

// ErrCritique marks a critique call whose reply was an error text.
var ErrCritique = errors.New("critique generation failed")

var critiquePromptTmpl = template.Must(template.New("critique").Parse(`You are a peer reviewer for a systematic literature review (SLR) on the subject [{{.Subject}}]. Review the LaTeX draft below for coverage of the summarized papers, correctness of citations, structure, and adherence to SLR methodology.
{{with .Previous}}
The previous review raised these points; say which were addressed:
{{range .NewIssues}}- {{.}}
{{end}}{{range $section, $items := .SuggestionsBySection}}{{range $items}}- [{{$section}}] {{.}}
{{end}}{{end}}{{range .GeneralSuggestions}}- {{.}}
{{end}}{{end}}
Answer in exactly this format, writing "None" under a label that has nothing to report:

{{.Labels.Rating}} <score>/10
{{.Labels.Addressed}}
<one paragraph>
{{.Labels.NewIssues}}
- <issue>
{{.Labels.BySection}}
- [<Section name>] <suggestion>
{{.Labels.General}}
- <suggestion>

Draft:
{{.Document}}
`))

type labels struct {
	Rating, Addressed, NewIssues, BySection, General string
}

type promptData struct {
	Subject  string
	Document string
	Previous *types.CritiqueReport
	Labels   labels
}

// Critic reviews drafts.
type Critic struct {
	llm llm.Generator
	log zerolog.Logger
}

// NewCritic returns a Critic over g.
func NewCritic(g llm.Generator, log zerolog.Logger) *Critic {
	return &Critic{llm: g, log: log}
}

// Review critiques document. previous, when non-nil, is the prior cycle's
// report so the reviewer can judge which points were addressed. The raw
// reply is returned with the parsed report.
func (c *Critic) Review(ctx context.Context, subject, document string, previous *types.CritiqueReport) (types.CritiqueReport, string, error) {
	var buf bytes.Buffer
	err := critiquePromptTmpl.Execute(&buf, promptData{
		Subject:  subject,
		Document: document,
		Previous: previous,
		Labels:   labels{LabelRating, LabelAddressed, LabelNewIssues, LabelBySection, LabelGeneral},
	})
	if err != nil {
		return types.CritiqueReport{}, "", fmt.Errorf("rendering critique prompt: %w", err)
	}

	reply := c.llm.Generate(ctx, buf.String())
	if llm.IsErrorText(reply) || strings.TrimSpace(reply) == "" {
		return types.CritiqueReport{}, reply, fmt.Errorf("%w: %s", ErrCritique, strings.TrimSpace(reply))
	}
	report := Parse(reply)
	c.log.Info().
		Str("rating", report.Rating).
		Int("new_issues", len(report.NewIssues)).
		Int("suggestions", report.SuggestionCount()).
		Msg("draft reviewed")
	return report, reply, nil
}

var (
	labelRe   = regexp.MustCompile(`(?i)^[#*\s]*(RATING|ADDRESSED POINTS|NEW ISSUES|SUGGESTIONS BY SECTION|GENERAL SUGGESTIONS)\s*[*]*\s*:\s*[*]*\s*(.*)$`)
	bulletRe  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	sectionRe = regexp.MustCompile(`^\[([^\]]+)\]\s*:?\s*(.*)$`)
)

// Parse reads a labelled critique reply. Labels are matched case
// insensitively and may carry Markdown emphasis. Bullets reading "None"
// are dropped; a section suggestion without a [Section] prefix is filed
// under general suggestions.
func Parse(text string) types.CritiqueReport {
	r := types.CritiqueReport{SuggestionsBySection: map[string][]string{}}
	var addressed []string
	label := ""

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if m := labelRe.FindStringSubmatch(line); m != nil {
			label = strings.ToUpper(m[1])
			line = strings.TrimSpace(m[2])
			if line == "" {
				continue
			}
		}
		if line == "" || label == "" {
			continue
		}

		switch label {
		case "RATING":
			if r.Rating == "" {
				r.Rating = strings.Trim(line, "* ")
			}
		case "ADDRESSED POINTS":
			if !isNone(line) {
				addressed = append(addressed, stripBullet(line))
			}
		case "NEW ISSUES":
			if item := stripBullet(line); !isNone(item) {
				r.NewIssues = append(r.NewIssues, item)
			}
		case "SUGGESTIONS BY SECTION":
			item := stripBullet(line)
			if isNone(item) {
				continue
			}
			if m := sectionRe.FindStringSubmatch(item); m != nil && strings.TrimSpace(m[2]) != "" {
				name := strings.TrimSpace(m[1])
				r.SuggestionsBySection[name] = append(r.SuggestionsBySection[name], strings.TrimSpace(m[2]))
			} else {
				r.GeneralSuggestions = append(r.GeneralSuggestions, item)
			}
		case "GENERAL SUGGESTIONS":
			if item := stripBullet(line); !isNone(item) {
				r.GeneralSuggestions = append(r.GeneralSuggestions, item)
			}
		}
	}
	r.AddressedPointsSummary = strings.Join(addressed, " ")
	return r
}

// ShouldStop reports whether refinement can end: no new issues, no
// suggestions of either kind, and a rating of at least stopRating.
// A non-positive stopRating uses DefaultStopRating.
func ShouldStop(r types.CritiqueReport, stopRating float64) bool {
	if stopRating <= 0 {
		stopRating = DefaultStopRating
	}
	if !r.IsClean() {
		return false
	}
	rating, ok := r.NumericRating()
	return ok && rating >= stopRating
}

func stripBullet(s string) string {
	return strings.TrimSpace(bulletRe.ReplaceAllString(s, ""))
}

// noneRe matches "No new issues were identified", "No further suggestions"
// and similar.
var noneRe = regexp.MustCompile(`^no (?:new |further |other |additional )?(?:issues|suggestions)(?: (?:were|are|have been) (?:identified|found|raised|noted|needed))?$`)

func isNone(s string) bool {
	v := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(s), ".*-")))
	switch v {
	case "", "none", "n/a", "na":
		return true
	}
	return noneRe.MatchString(strings.Join(strings.Fields(v), " "))
}
