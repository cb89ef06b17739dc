// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"regexp"
	"strconv"
)

// CritiqueReport is the parsed reviewer feedback for one refinement cycle.
type CritiqueReport struct {
	// Rating is free text, loosely formatted as "N/N" (e.g. "7/10").
	Rating string `json:"rating" yaml:"rating"`

	AddressedPointsSummary string              `json:"addressed_points_summary" yaml:"addressed_points_summary"`
	NewIssues              []string            `json:"new_issues" yaml:"new_issues"`
	SuggestionsBySection   map[string][]string `json:"suggestions_by_section" yaml:"suggestions_by_section"`
	GeneralSuggestions     []string            `json:"general_suggestions" yaml:"general_suggestions"`
}

var ratingRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:/\s*(\d+(?:\.\d+)?))?`)

// NumericRating returns the rating on a 10-point scale. "4/5" yields 8.
// The second value is false when no number can be found.
func (r CritiqueReport) NumericRating() (float64, bool) {
	m := ratingRe.FindStringSubmatch(r.Rating)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "" {
		return n, true
	}
	d, err := strconv.ParseFloat(m[2], 64)
	if err != nil || d == 0 {
		return n, true
	}
	return n / d * 10, true
}

// SuggestionCount returns the number of section-specific and general suggestions.
func (r CritiqueReport) SuggestionCount() int {
	n := len(r.GeneralSuggestions)
	for _, s := range r.SuggestionsBySection {
		n += len(s)
	}
	return n
}

// IsClean reports whether the critique raised no new issues and made no
// suggestions.
func (r CritiqueReport) IsClean() bool {
	return len(r.NewIssues) == 0 && r.SuggestionCount() == 0
}
