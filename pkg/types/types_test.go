package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceSuffix(t *testing.T) {
	assert.Equal(t, Source("arxiv_snowball"), SourceArxiv.WithSuffix(OriginSnowball))
	assert.Equal(t, Source("scopus_supplementary"), SourceScopus.WithSuffix(OriginSupplementary))
	assert.Equal(t, Source("arxiv_supplementary"), Source("arxiv_snowball").WithSuffix(OriginSupplementary))
	assert.Equal(t, SourceManual, SourceManual.WithSuffix(""))
	assert.Equal(t, SourceScopus, Source("scopus_snowball").Base())
}

func TestIdentifiedKey(t *testing.T) {
	tests := map[Source]string{
		SourceArxiv:                 CountIdentifiedArxiv,
		SourceScopus:                CountIdentifiedScopus,
		SourceManual:                CountIdentifiedManual,
		"arxiv_snowball":            CountIdentifiedSnowball,
		"scopus_supplementary":      CountIdentifiedSupplementary,
		"somewhere_else_altogether": CountIdentifiedTotal,
	}
	for src, want := range tests {
		assert.Equal(t, want, IdentifiedKey(src), "source %s", src)
	}
}

func TestCounts(t *testing.T) {
	c := Counts{}
	c.Add(CountScreened, 2)
	c.Add(CountScreened, 3)
	c.Add(CountIncluded, 0)

	v, ok := c.Get(CountScreened)
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	v, ok = c.Get(CountIncluded)
	assert.True(t, ok, "a zero added value still counts as set")
	assert.Zero(t, v)

	_, ok = c.Get(CountDuplicatesRemoved)
	assert.False(t, ok)

	assert.Equal(t, []string{CountScreened, CountIncluded}, c.Keys())
}

func TestNumericRating(t *testing.T) {
	tests := []struct {
		rating string
		want   float64
		ok     bool
	}{
		{"8/10", 8, true},
		{"4/5", 8, true},
		{"Rating: 7.5 / 10", 7.5, true},
		{"9", 9, true},
		{"excellent", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := CritiqueReport{Rating: tt.rating}.NumericRating()
		assert.Equal(t, tt.ok, ok, tt.rating)
		assert.InDelta(t, tt.want, got, 1e-9, tt.rating)
	}
}

func TestCritiqueIsClean(t *testing.T) {
	assert.True(t, CritiqueReport{Rating: "9/10"}.IsClean())
	assert.False(t, CritiqueReport{NewIssues: []string{"thin methods"}}.IsClean())
	assert.False(t, CritiqueReport{GeneralSuggestions: []string{"tighten prose"}}.IsClean())

	r := CritiqueReport{SuggestionsBySection: map[string][]string{"Discussion": {"cite more", "shorten"}}}
	assert.False(t, r.IsClean())
	assert.Equal(t, 2, r.SuggestionCount())
}

func TestPaperRecordFileBaseAndCitation(t *testing.T) {
	p := PaperRecord{
		PrimaryID:     "arxiv_2301.07041",
		Title:         "Attention Budgets",
		Authors:       []string{"A. Lovelace", "C. Babbage"},
		PublishedYear: 2023,
		DOI:           "10.1000/xyz",
	}
	assert.Equal(t, "arxiv_2301.07041", p.FileBase())
	assert.Equal(t, "A. Lovelace, C. Babbage. Attention Budgets (2023). doi:10.1000/xyz", p.Citation())

	p.TXTPath = "txt_papers/2301.07041.txt"
	assert.Equal(t, "2301.07041", p.FileBase())

	bare := PaperRecord{Title: "Untitled", URL: "https://example.org/p"}
	assert.Equal(t, "Untitled. https://example.org/p", bare.Citation())
}

func TestPipelineConfigValidate(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Error(t, cfg.Validate(), "subject is required")

	cfg.Subject = "LLM agents for code review"
	require.NoError(t, cfg.Validate())

	cfg.EndYear = cfg.StartYear - 1
	assert.Error(t, cfg.Validate())
}
