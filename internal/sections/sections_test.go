// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sections

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/slr-engine/internal/llm"
	"github.com/pdiddy/slr-engine/pkg/types"
)

func baseContext() Context {
	return Context{
		Subject:      "LLM serious games",
		StartYear:    2022,
		EndYear:      2024,
		Summaries:    "Summary of [arxiv_1].",
		Bibliography: "@article{arxiv_1, title={One}}",
		Outline:      "1. Related Works: themes",
	}
}

func TestSectionPrompts(t *testing.T) {
	c := baseContext()
	prior := Prior{
		RelatedWorks:         "RW-BODY",
		ResearchMethods:      "RM-BODY",
		ReviewFindings:       "RF-BODY",
		DiscussionConclusion: "DC-BODY",
	}

	tests := []struct {
		name    string
		b       Builder
		want    []string
		notWant []string
	}{
		{"related works", RelatedWorks{Context: c}, []string{`\section{Related Works}`, "Summary of [arxiv_1].", "@article{arxiv_1"}, []string{"RW-BODY"}},
		{"research methods", ResearchMethods{Context: c, RelatedWorks: "RW-BODY"}, []string{`\section{Research Methods}`, "RW-BODY", "<<STUDIES_INCLUDED>>", "PRISMA"}, nil},
		{"review findings", ReviewFindings{Context: c, ResearchMethods: "RM-BODY"}, []string{`\section{Review Findings}`, "RM-BODY"}, []string{"RW-BODY"}},
		{"discussion", DiscussionConclusion{Context: c, ReviewFindings: "RF-BODY"}, []string{`\section{Discussion and Conclusion}`, "RF-BODY"}, nil},
		{"background", Background{Context: c, Prior: prior}, []string{`\section{Background}`, "RW-BODY", "RM-BODY", "RF-BODY", "DC-BODY"}, []string{"Summary of [arxiv_1]."}},
		{"abstract", AbstractIntro{Context: c, Prior: prior}, []string{`\section{Abstract}`, "keywords", "DC-BODY"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.b.Prompt()
			require.NoError(t, err)
			for _, s := range append(tt.want, "[LLM serious games]", "between 2022 and 2024", "1. Related Works: themes", `\documentclass`) {
				assert.Contains(t, p, s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, p, s)
			}
			assert.NotContains(t, p, "Reviewer feedback")
		})
	}
}

func TestPromptWithoutYears(t *testing.T) {
	p, err := RelatedWorks{Context: Context{Subject: "X", Summaries: "s"}}.Prompt()
	require.NoError(t, err)
	assert.NotContains(t, p, "published between")
	assert.NotContains(t, p, "High-level outline")
	assert.NotContains(t, p, "Bibliography entries")
}

func TestPromptCarriesCritique(t *testing.T) {
	c := baseContext()
	c.Critique = &types.CritiqueReport{
		Rating:    "6/10",
		NewIssues: []string{"Missing quality assessment"},
		SuggestionsBySection: map[string][]string{
			"Related Works": {"Group papers by theme"},
			"Discussion":    {"Expand future work"},
		},
		GeneralSuggestions: []string{"Tighten prose"},
	}

	rw, err := RelatedWorks{Context: c}.Prompt()
	require.NoError(t, err)
	assert.Contains(t, rw, "rating: 6/10")
	assert.Contains(t, rw, "- Issue: Missing quality assessment")
	assert.Contains(t, rw, "- Suggestion for this section: Group papers by theme")
	assert.Contains(t, rw, "- General suggestion: Tighten prose")
	assert.NotContains(t, rw, "Expand future work")

	dc, err := DiscussionConclusion{Context: c}.Prompt()
	require.NoError(t, err)
	assert.Contains(t, dc, "Expand future work")
	assert.NotContains(t, dc, "Group papers by theme")
}

func TestSectionMatches(t *testing.T) {
	tests := []struct {
		k     Kind
		label string
		want  bool
	}{
		{KindRelatedWorks, "Related Work", true},
		{KindRelatedWorks, "related_works", true},
		{KindReviewFindings, "Findings", true},
		{KindDiscussionConclusion, "Conclusion", true},
		{KindAbstractIntro, "Introduction", true},
		{KindAbstractIntro, "Abstract & Keywords", true},
		{KindBackground, "Research Methods", false},
		{KindBackground, "-", false},
		{KindResearchMethods, "Methods", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SectionMatches(tt.k, tt.label), "%s / %q", tt.k, tt.label)
	}
}

func TestOutlinePrompt(t *testing.T) {
	p, err := Outline{Subject: "X", StartYear: 2020, EndYear: 2021, Summaries: "S1"}.Prompt()
	require.NoError(t, err)
	assert.Contains(t, p, "[X] covering 2020 to 2021")
	assert.Contains(t, p, "S1")
}

// echo replies with the section heading found in the prompt.
type echo struct {
	prompts []string
	fail    string
}

func (e *echo) Generate(_ context.Context, prompt string) string {
	e.prompts = append(e.prompts, prompt)
	for _, k := range DocumentOrder() {
		h := `\section{` + k.Title() + `}`
		if strings.Contains(prompt, "Start directly with "+h) {
			if k == Kind(e.fail) {
				return llm.ErrorPrefix + ": quota"
			}
			return h + "\nbody of " + string(k)
		}
	}
	return "outline text"
}

func TestWriterDraft(t *testing.T) {
	dir := t.TempDir()
	g := &echo{}
	w := NewWriter(g, dir, zerolog.Nop())

	d, err := w.Draft(context.Background(), baseContext())
	require.NoError(t, err)
	require.Len(t, g.prompts, 6)

	// Prior sections flow into later prompts.
	assert.Contains(t, g.prompts[1], "body of related_works")
	assert.Contains(t, g.prompts[5], "body of discussion_conclusion")

	for _, k := range DocumentOrder() {
		data, err := os.ReadFile(filepath.Join(dir, k.FileName()))
		require.NoError(t, err)
		assert.Equal(t, d[k], string(data))
	}
	body := d.InOrder()
	require.Len(t, body, 6)
	assert.True(t, strings.HasPrefix(body[0], `\section{Abstract}`))
}

func TestWriterDraftContinuesAfterFailure(t *testing.T) {
	g := &echo{fail: string(KindResearchMethods)}
	w := NewWriter(g, t.TempDir(), zerolog.Nop())

	d, err := w.Draft(context.Background(), baseContext())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGeneration))
	assert.Len(t, g.prompts, 6)
	assert.Empty(t, d[KindResearchMethods])
	assert.Len(t, d.InOrder(), 5)
}

func TestWriterOutline(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(&echo{}, dir, zerolog.Nop())

	text, err := w.Outline(context.Background(), Outline{Subject: "X", Summaries: "s"})
	require.NoError(t, err)
	assert.Equal(t, "outline text", text)
	data, err := os.ReadFile(filepath.Join(dir, OutlineFile))
	require.NoError(t, err)
	assert.Equal(t, "outline text", string(data))
}
