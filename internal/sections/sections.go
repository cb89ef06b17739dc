// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sections builds the prompts for each part of the review and
// writes the generated LaTeX sections. Builders are typed so the content
// of a prompt follows from its fields.
package sections

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/slr-engine/pkg/types"
)

// Kind names a document section; its value is the file slug.
type Kind string

const (
	KindAbstractIntro        Kind = "abstract_intro"
	KindBackground           Kind = "background"
	KindRelatedWorks         Kind = "related_works"
	KindResearchMethods      Kind = "research_methods"
	KindReviewFindings       Kind = "review_findings"
	KindDiscussionConclusion Kind = "discussion_conclusion"
)

var titles = map[Kind]string{
	KindAbstractIntro:        "Abstract",
	KindBackground:           "Background",
	KindRelatedWorks:         "Related Works",
	KindResearchMethods:      "Research Methods",
	KindReviewFindings:       "Review Findings",
	KindDiscussionConclusion: "Discussion and Conclusion",
}

// Title returns the section heading.
func (k Kind) Title() string { return titles[k] }

// FileName returns "<slug>.tex".
func (k Kind) FileName() string { return string(k) + ".tex" }

// DocumentOrder lists sections as they appear in the assembled document.
func DocumentOrder() []Kind {
	return []Kind{KindAbstractIntro, KindBackground, KindRelatedWorks, KindResearchMethods, KindReviewFindings, KindDiscussionConclusion}
}

// GenerationOrder lists sections in dependency order: each one only needs
// the sections before it.
func GenerationOrder() []Kind {
	return []Kind{KindRelatedWorks, KindResearchMethods, KindReviewFindings, KindDiscussionConclusion, KindBackground, KindAbstractIntro}
}

// Builder renders the prompt for one section.
type Builder interface {
	Kind() Kind
	Prompt() (string, error)
}

// Context is what every section prompt shares. Critique is nil on the
// first cycle.
type Context struct {
	Subject      string
	StartYear    int
	EndYear      int
	Summaries    string
	Bibliography string
	Outline      string
	Critique     *types.CritiqueReport
}

// Prior holds sections generated earlier in the same cycle.
type Prior struct {
	RelatedWorks         string
	ResearchMethods      string
	ReviewFindings       string
	DiscussionConclusion string
}

// RelatedWorks builds the Related Works prompt.
type RelatedWorks struct{ Context }

func (RelatedWorks) Kind() Kind { return KindRelatedWorks }

func (b RelatedWorks) Prompt() (string, error) {
	return render(string(b.Kind()), newView(b.Kind(), b.Context, Prior{}))
}

// ResearchMethods builds the Research Methods prompt from the Related Works.
type ResearchMethods struct {
	Context
	RelatedWorks string
}

func (ResearchMethods) Kind() Kind { return KindResearchMethods }

func (b ResearchMethods) Prompt() (string, error) {
	return render(string(b.Kind()), newView(b.Kind(), b.Context, Prior{RelatedWorks: b.RelatedWorks}))
}

// ReviewFindings builds the Review Findings prompt from the Research Methods.
type ReviewFindings struct {
	Context
	ResearchMethods string
}

func (ReviewFindings) Kind() Kind { return KindReviewFindings }

func (b ReviewFindings) Prompt() (string, error) {
	return render(string(b.Kind()), newView(b.Kind(), b.Context, Prior{ResearchMethods: b.ResearchMethods}))
}

// DiscussionConclusion builds the Discussion prompt from the Review Findings.
type DiscussionConclusion struct {
	Context
	ReviewFindings string
}

func (DiscussionConclusion) Kind() Kind { return KindDiscussionConclusion }

func (b DiscussionConclusion) Prompt() (string, error) {
	return render(string(b.Kind()), newView(b.Kind(), b.Context, Prior{ReviewFindings: b.ReviewFindings}))
}

// Background builds the Background prompt from the four body sections.
type Background struct {
	Context
	Prior
}

func (Background) Kind() Kind { return KindBackground }

func (b Background) Prompt() (string, error) {
	return render(string(b.Kind()), newView(b.Kind(), b.Context, b.Prior))
}

// AbstractIntro builds the abstract, introduction and keywords prompt.
type AbstractIntro struct {
	Context
	Prior
}

func (AbstractIntro) Kind() Kind { return KindAbstractIntro }

func (b AbstractIntro) Prompt() (string, error) {
	return render(string(b.Kind()), newView(b.Kind(), b.Context, b.Prior))
}

// Outline builds the high-level outline prompt. It runs once per run,
// before any section.
type Outline struct {
	Subject   string
	StartYear int
	EndYear   int
	Summaries string
}

func (b Outline) Prompt() (string, error) {
	return render("outline", b)
}

// view is the data every section template executes against.
type view struct {
	Context
	Prior
	Heading  string
	Feedback *feedback
}

type feedback struct {
	Rating    string
	NewIssues []string
	Section   []string
	General   []string
}

func newView(k Kind, c Context, p Prior) view {
	return view{
		Context:  c,
		Prior:    p,
		Heading:  `\section{` + k.Title() + `}`,
		Feedback: feedbackFor(k, c.Critique),
	}
}

// feedbackFor selects the critique points that apply to section k.
func feedbackFor(k Kind, r *types.CritiqueReport) *feedback {
	if r == nil {
		return nil
	}
	f := &feedback{
		Rating:    r.Rating,
		NewIssues: r.NewIssues,
		General:   r.GeneralSuggestions,
	}
	names := make([]string, 0, len(r.SuggestionsBySection))
	for name := range r.SuggestionsBySection {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if SectionMatches(k, name) {
			f.Section = append(f.Section, r.SuggestionsBySection[name]...)
		}
	}
	if f.Rating == "" {
		f.Rating = "unrated"
	}
	return f
}

// SectionMatches reports whether a reviewer's section label refers to k.
// Labels are compared on letters only, and a label may name part of the
// title ("Discussion" matches "Discussion and Conclusion").
func SectionMatches(k Kind, label string) bool {
	l := letters(label)
	if len(l) < 4 {
		return false
	}
	for _, candidate := range []string{letters(k.Title()), letters(string(k))} {
		if strings.Contains(candidate, l) || strings.Contains(l, candidate) {
			return true
		}
	}
	if k == KindAbstractIntro {
		return strings.Contains(l, "introduction") || strings.Contains(l, "keywords")
	}
	return false
}

func letters(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
