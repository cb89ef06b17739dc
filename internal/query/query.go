// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query turns a research goal into short academic search queries.
package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/llm"
)

// InvalidGoalMarker is the reply the model gives for goals that cannot be
// searched academically.
const InvalidGoalMarker = "INVALID_QUERY_FOR_ACADEMIC_SEARCH"

// ErrUnsuitableGoal is returned by Initial when the model rejects the goal.
var ErrUnsuitableGoal = errors.New("query: goal is not suitable for academic search")

// Angle is one research perspective and the search phrase derived from it.
type Angle struct {
	Angle string `json:"angle" yaml:"angle"`
	Query string `json:"query" yaml:"query"`
}

// Fallback is the angle used when the model gives no usable answer.
func Fallback(goal string) Angle {
	return Angle{Angle: "Academic analysis of " + goal, Query: goal}
}

var anglePromptTmpl = template.Must(template.New("angle").Parse(`You are helping plan a systematic literature review.

Research goal: {{.Goal}}
{{- if .History}}

Angles and queries already used (do not repeat any of them):
{{- range .History}}
- {{.Angle}} (query: {{.Query}})
{{- end}}
{{- end}}

Propose ONE new research angle on the goal and a search query for it.
{{- if .Short}} The query must be at most two words.{{else}} The query should be a short phrase suitable for arXiv and Scopus.{{end}}
{{- if .AllowReject}}
If the goal cannot be studied through academic literature at all, reply with exactly {{.Marker}} and nothing else.
{{- end}}

Reply in exactly this format:
ANGLE: <one sentence>
QUERY: <search query>
`))

type promptData struct {
	Goal        string
	History     []Angle
	Short       bool
	AllowReject bool
	Marker      string
}

// Generator asks the LLM for research angles.
type Generator struct {
	llm llm.Generator
	log zerolog.Logger
}

// NewGenerator returns a Generator backed by g.
func NewGenerator(g llm.Generator, log zerolog.Logger) *Generator {
	return &Generator{llm: g, log: log}
}

// Initial produces the first angle for goal. It returns ErrUnsuitableGoal
// when the model answers with InvalidGoalMarker; any other failure degrades
// to Fallback.
func (g *Generator) Initial(ctx context.Context, goal string) (Angle, error) {
	reply, err := g.ask(ctx, promptData{Goal: goal, AllowReject: true, Marker: InvalidGoalMarker})
	if err != nil {
		return Fallback(goal), nil
	}
	if strings.Contains(reply, InvalidGoalMarker) {
		return Angle{}, ErrUnsuitableGoal
	}
	return g.parseOrFallback(goal, reply), nil
}

// Generate produces an angle distinct from history. Supplementary rounds
// ask for queries of at most two words. Distinctness is requested in the
// prompt only. It never fails: unusable replies degrade to Fallback.
func (g *Generator) Generate(ctx context.Context, goal string, history []Angle) Angle {
	reply, err := g.ask(ctx, promptData{Goal: goal, History: history, Short: len(history) > 0})
	if err != nil {
		return Fallback(goal)
	}
	a := g.parseOrFallback(goal, reply)
	if seen(history, a) {
		g.log.Debug().Str("query", a.Query).Msg("model repeated a previous query")
	}
	return a
}

func (g *Generator) ask(ctx context.Context, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := anglePromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering angle prompt: %w", err)
	}
	reply := g.llm.Generate(ctx, buf.String())
	if llm.IsErrorText(reply) {
		g.log.Warn().Str("reply", reply).Msg("query generation failed, using fallback")
		return "", errors.New(reply)
	}
	return reply, nil
}

func (g *Generator) parseOrFallback(goal, reply string) Angle {
	a, ok := Parse(reply)
	if !ok {
		g.log.Warn().Msg("query reply missing ANGLE/QUERY markers, using fallback")
		return Fallback(goal)
	}
	g.log.Info().Str("angle", a.Angle).Str("query", a.Query).Msg("generated query")
	return a
}

// Parse extracts the ANGLE: and QUERY: lines from reply. Both must be
// present and non-empty.
func Parse(reply string) (Angle, bool) {
	var a Angle
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*"))
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ANGLE:"):
			a.Angle = cleanValue(line[len("ANGLE:"):])
		case strings.HasPrefix(upper, "QUERY:"):
			a.Query = cleanValue(line[len("QUERY:"):])
		}
	}
	return a, a.Angle != "" && a.Query != ""
}

func cleanValue(s string) string {
	return strings.Trim(s, "\"'* \t")
}

func seen(history []Angle, a Angle) bool {
	for _, h := range history {
		if strings.EqualFold(h.Query, a.Query) {
			return true
		}
	}
	return false
}
