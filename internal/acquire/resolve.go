// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package acquire

import (
	"regexp"
	"strings"
)

// ArxivPDFBase is the fallback PDF host for arXiv entries without a pdf
// link. Declared as a var so tests can substitute an httptest server.
var ArxivPDFBase = "https://arxiv.org/pdf/"

// unsafeChars matches every rune outside [-\w.].
var unsafeChars = regexp.MustCompile(`[^\-\w.]`)

// Sanitize produces a filesystem-safe identifier: surrounding whitespace
// is trimmed, spaces become underscores, and any other rune outside
// letters, digits, '_', '-' and '.' is dropped.
func Sanitize(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	return unsafeChars.ReplaceAllString(name, "")
}

// ArxivID extracts the bare identifier from an Atom entry id such as
// "http://arxiv.org/abs/2301.07041v1". It returns "" when no id is present.
func ArxivID(entryID string) string {
	entryID = strings.TrimSpace(entryID)
	if i := strings.LastIndex(entryID, "abs/"); i >= 0 {
		entryID = entryID[i+len("abs/"):]
	}
	return strings.TrimSpace(entryID)
}

// ArxivPrimaryID returns the dedup key for an arXiv identifier.
func ArxivPrimaryID(arxivID string) string {
	return Sanitize("arxiv_" + arxivID)
}

// ArxivPDFURL returns the fallback PDF URL for an arXiv identifier.
func ArxivPDFURL(arxivID string) string {
	return ArxivPDFBase + arxivID + ".pdf"
}

// ScopusID strips the "SCOPUS_ID:" style prefix from dc:identifier.
func ScopusID(identifier string) string {
	if i := strings.LastIndexByte(identifier, ':'); i >= 0 {
		return strings.TrimSpace(identifier[i+1:])
	}
	return strings.TrimSpace(identifier)
}

// ScopusPrimaryID returns the dedup key for a Scopus hit, preferring the
// DOI and falling back to the Scopus identifier.
func ScopusPrimaryID(doi, scopusID string) string {
	if doi != "" {
		return Sanitize("scopus_" + strings.ReplaceAll(doi, "/", "_"))
	}
	return Sanitize("scopus_" + scopusID)
}

// ManualPrimaryID returns the dedup key for a user-supplied file.
func ManualPrimaryID(filename string) string {
	return "manual_" + Sanitize(filename)
}

// NormalizeTitle lowercases a title and collapses whitespace and
// punctuation, for title-level duplicate checks.
func NormalizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}
