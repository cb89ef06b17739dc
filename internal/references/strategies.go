// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package references

import (
	"regexp"
	"strconv"
	"strings"
)

// Strategy parses reference candidates out of a block of text. Each
// strategy recognises one citation style.
type Strategy interface {
	Name() string
	Parse(text string) []Candidate
}

// DefaultStrategies returns the numbered, author-year and quoted-title
// strategies in the order they are tried.
func DefaultStrategies() []Strategy {
	return []Strategy{NumberedStrategy{}, AuthorYearStrategy{}, QuotedTitleStrategy{}}
}

var (
	// numberedMarkerRe finds "[12] " entry markers in flattened text.
	numberedMarkerRe = regexp.MustCompile(`\[(\d{1,3})\]\s+`)

	// authorBlockRe captures a leading author block like "Smith, A. and
	// Jones, B." or "A. Smith, B. Jones, and C. Lee." ahead of the title.
	authorBlockRe = regexp.MustCompile(
		`^((?:(?:[A-Z][A-Za-z'\-]+,\s+(?:[A-Z]\.\s?)+|(?:[A-Z]\.\s?)+[A-Z][A-Za-z'\-]+)(?:,?\s+(?:and|&)\s+|,\s+)?)+(?:\s*et\s+al\.)?)\s*\.?\s+(.+)$`,
	)

	// authorYearRe matches "Smith, J., & Lee, K. (2021). Title of the work."
	authorYearRe = regexp.MustCompile(
		`((?:[A-Z][A-Za-z'\-]+,\s+(?:[A-Z]\.\s?)+(?:,\s+|,?\s+(?:and|&)\s+)?)+(?:et\s+al\.\s*)?)\((\d{4})[a-z]?\)\.\s+([^.?!]{10,300}[.?!])`,
	)

	// quotedTitleRe matches `A. Smith and B. Jones, "Title of the work," in Venue, 2020`.
	quotedTitleRe = regexp.MustCompile(
		`((?:[A-Z]\.\s?)+[A-Z][A-Za-z'\-]+(?:(?:,\s+|,?\s+and\s+)(?:[A-Z]\.\s?)+[A-Z][A-Za-z'\-]+)*(?:\s+et\s+al\.)?),\s+["“]([^"”]{10,300}?)[,.]?["”]([^"“]{0,200}?)\b((?:19|20)\d{2})\b`,
	)

	yearRe    = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	initialRe = regexp.MustCompile(`\b([A-Z])\.`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// NumberedStrategy parses "[n] Authors. Title. Venue, Year." entries.
type NumberedStrategy struct{}

func (NumberedStrategy) Name() string { return "numbered" }

func (NumberedStrategy) Parse(text string) []Candidate {
	flat := flatten(text)
	locs := numberedMarkerRe.FindAllStringIndex(flat, -1)
	if len(locs) == 0 {
		return nil
	}

	var out []Candidate
	for i, loc := range locs {
		end := len(flat)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if c, ok := parseNumberedEntry(strings.TrimSpace(flat[loc[1]:end])); ok {
			out = append(out, c)
		}
	}
	return out
}

// parseNumberedEntry reads one entry. IEEE-style entries carry a quoted
// title, which takes precedence over sentence splitting.
func parseNumberedEntry(raw string) (Candidate, bool) {
	if m := quotedTitleRe.FindStringSubmatch(raw); m != nil {
		c := quotedCandidate(m)
		return c, validTitle(c.Title)
	}

	c := Candidate{Year: extractYear(raw)}

	remainder := raw
	if m := authorBlockRe.FindStringSubmatch(raw); m != nil {
		c.Authors = parseAuthors(m[1])
		remainder = m[2]
	}

	parts := splitOnPeriods(remainder)
	if len(parts) == 0 {
		return Candidate{}, false
	}
	c.Title = cleanTitle(parts[0])
	return c, validTitle(c.Title)
}

// AuthorYearStrategy parses "Authors (Year). Title." entries.
type AuthorYearStrategy struct{}

func (AuthorYearStrategy) Name() string { return "author-year" }

func (AuthorYearStrategy) Parse(text string) []Candidate {
	var out []Candidate
	for _, m := range authorYearRe.FindAllStringSubmatch(flatten(text), -1) {
		year, _ := strconv.Atoi(m[2])
		c := Candidate{
			Title:   cleanTitle(m[3]),
			Authors: parseAuthors(strings.TrimRight(strings.TrimSpace(m[1]), ",")),
			Year:    year,
		}
		if validTitle(c.Title) {
			out = append(out, c)
		}
	}
	return out
}

// QuotedTitleStrategy parses `Authors, "Title," Venue, Year` entries.
type QuotedTitleStrategy struct{}

func (QuotedTitleStrategy) Name() string { return "quoted-title" }

func (QuotedTitleStrategy) Parse(text string) []Candidate {
	var out []Candidate
	for _, m := range quotedTitleRe.FindAllStringSubmatch(flatten(text), -1) {
		if c := quotedCandidate(m); validTitle(c.Title) {
			out = append(out, c)
		}
	}
	return out
}

func quotedCandidate(m []string) Candidate {
	year, _ := strconv.Atoi(m[4])
	return Candidate{
		Title:   cleanTitle(m[2]),
		Authors: parseAuthors(m[1]),
		Year:    year,
	}
}

// flatten joins hyphenated line breaks and collapses whitespace.
func flatten(text string) string {
	text = strings.ReplaceAll(text, "-\n", "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

func extractYear(text string) int {
	m := yearRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}

// splitOnPeriods splits an entry at sentence boundaries, but not on
// "et al.", "e.g.", "i.e." or single-letter initials.
func splitOnPeriods(text string) []string {
	safe := strings.ReplaceAll(text, "et al.", "et al\x00")
	safe = strings.ReplaceAll(safe, "e.g.", "e\x00g\x00")
	safe = strings.ReplaceAll(safe, "i.e.", "i\x00e\x00")
	safe = initialRe.ReplaceAllString(safe, "${1}\x00")

	var result []string
	for _, p := range strings.Split(safe, ". ") {
		p = strings.ReplaceAll(p, "\x00", ".")
		p = strings.TrimSpace(strings.TrimRight(p, "."))
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// parseAuthors splits an author block on "and", "&" and the separators
// between full names.
func parseAuthors(block string) []string {
	block = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(block), "et al."))
	block = strings.TrimRight(block, ", ")
	if block == "" {
		return nil
	}
	block = strings.ReplaceAll(block, " & ", " and ")
	block = strings.ReplaceAll(block, ", and ", " and ")

	var authors []string
	for _, half := range strings.Split(block, " and ") {
		authors = append(authors, splitNames(strings.TrimSpace(half))...)
	}
	return authors
}

// splitNames separates "Smith, A., Jones, B." or "A. Smith, B. Jones".
func splitNames(s string) []string {
	parts := strings.Split(s, ", ")
	var names []string
	for i := 0; i < len(parts); i++ {
		p := strings.TrimSpace(parts[i])
		if p == "" {
			continue
		}
		// "Smith" followed by initials "A." forms one name.
		if i+1 < len(parts) && isInitials(parts[i+1]) && !isInitials(p) {
			names = append(names, p+", "+strings.TrimSpace(parts[i+1]))
			i++
			continue
		}
		names = append(names, p)
	}
	return names
}

func isInitials(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, f := range strings.Fields(s) {
		if !initialRe.MatchString(f) || len(strings.TrimRight(f, ".")) > 2 {
			return false
		}
	}
	return true
}

func cleanTitle(t string) string {
	t = strings.TrimSpace(t)
	t = strings.Trim(t, `"“”,.;: `)
	return t
}

// validTitle rejects fragments too short to search for.
func validTitle(t string) bool {
	return len(t) >= 10 && len(strings.Fields(t)) >= 2 && len(t) <= 300
}
