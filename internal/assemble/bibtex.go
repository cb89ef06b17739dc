// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/slr-engine/pkg/types"
)

// CitationKey is the key a record is cited by: its file base, the same
// name summaries use in [brackets].
func CitationKey(rec types.PaperRecord) string {
	return rec.FileBase()
}

// BibTeX renders one entry per record. Records with a journal reference
// become @article, the rest @misc.
func BibTeX(records []types.PaperRecord) string {
	var b strings.Builder
	for _, r := range records {
		kind := "misc"
		if r.JournalRef != "" {
			kind = "article"
		}
		fmt.Fprintf(&b, "@%s{%s,\n", kind, CitationKey(r))
		fmt.Fprintf(&b, "  title = {%s},\n", bibEscape(r.Title))
		if len(r.Authors) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", bibEscape(strings.Join(r.Authors, " and ")))
		}
		if r.PublishedYear > 0 {
			fmt.Fprintf(&b, "  year = {%d},\n", r.PublishedYear)
		}
		if r.JournalRef != "" {
			fmt.Fprintf(&b, "  journal = {%s},\n", bibEscape(r.JournalRef))
		}
		if r.DOI != "" {
			fmt.Fprintf(&b, "  doi = {%s},\n", r.DOI)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "  url = {%s},\n", r.URL)
		}
		b.WriteString("}\n\n")
	}
	return b.String()
}

// WriteBibTeX writes BibTeX(records) to dir/BibFile and returns the path.
func WriteBibTeX(dir string, records []types.PaperRecord) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(dir, BibFile)
	if err := os.WriteFile(path, []byte(BibTeX(records)), 0o644); err != nil {
		return "", fmt.Errorf("writing bibliography: %w", err)
	}
	return path, nil
}

var bibEscaper = strings.NewReplacer(`&`, `\&`, `%`, `\%`, `#`, `\#`)

func bibEscape(s string) string { return bibEscaper.Replace(s) }

// citationPattern matches bracketed citations: [Key] or [Key1; Key2].
var citationPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// UnknownCitations returns the sorted citation keys used in tex that name
// none of the records.
func UnknownCitations(tex string, records []types.PaperRecord) []string {
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[CitationKey(r)] = true
	}
	missing := map[string]bool{}
	for _, key := range citationKeys(tex) {
		if !known[key] {
			missing[key] = true
		}
	}
	out := make([]string, 0, len(missing))
	for k := range missing {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LinkCitations rewrites every bracketed citation whose keys all name a
// record into \cite{...}. Groups with an unknown key stay as written.
func LinkCitations(tex string, records []types.PaperRecord) string {
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[CitationKey(r)] = true
	}
	return citationPattern.ReplaceAllStringFunc(tex, func(m string) string {
		var keys []string
		for _, p := range strings.FieldsFunc(m[1:len(m)-1], func(r rune) bool { return r == ';' || r == ',' }) {
			key := strings.TrimSpace(p)
			if !known[key] {
				return m
			}
			keys = append(keys, key)
		}
		if len(keys) == 0 {
			return m
		}
		return `\cite{` + strings.Join(keys, ",") + `}`
	})
}

// citationKeys finds citation keys in tex. Multi-citations separated by
// semicolons or commas are split.
func citationKeys(tex string) []string {
	var keys []string
	for _, m := range citationPattern.FindAllStringSubmatch(tex, -1) {
		for _, p := range strings.FieldsFunc(m[1], func(r rune) bool { return r == ';' || r == ',' }) {
			if key := strings.TrimSpace(p); isCitationKey(key) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// isCitationKey accepts file-base style keys such as "arxiv_2301.07041"
// and rejects LaTeX option lists and prose in brackets.
func isCitationKey(s string) bool {
	hasLetter, hasDigitOrSep := false, false
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
			hasLetter = true
		case c >= '0' && c <= '9', c == '_':
			hasDigitOrSep = true
		case c == '-', c == '.':
		default:
			return false
		}
	}
	return hasLetter && hasDigitOrSep
}
