// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package assemble merges generated LaTeX sections into one compilable
// document, fills count placeholders, and writes the bibliography.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdiddy/slr-engine/pkg/types"
)

// BibFile is the bibliography file name the document references.
const BibFile = "biblio.bib"

// defaultPackages always open the preamble.
var defaultPackages = []string{
	`\usepackage[utf8]{inputenc}`,
	`\usepackage{amsmath}`,
	`\usepackage{graphicx}`,
	`\usepackage{booktabs}`,
	`\usepackage{tikz}`,
	`\usepackage{hyperref}`,
}

var (
	usepackageRe = regexp.MustCompile(`\\usepackage(?:\[[^\]]*\])?\{[^}]*\}`)
	fenceRe      = regexp.MustCompile("(?m)^[ \\t]*```[A-Za-z]*[ \\t]*$\\n?")

	// Document-level commands a section must not carry; Render supplies them.
	strippedRe = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^[ \t]*\\documentclass(?:\[[^\]]*\])?\{[^}]*\}[ \t]*$\n?`),
		regexp.MustCompile(`\\begin\{document\}\s*`),
		regexp.MustCompile(`\\end\{document\}\s*`),
		regexp.MustCompile(`(?m)^[ \t]*\\maketitle[ \t]*$\n?`),
		regexp.MustCompile(`(?m)^[ \t]*\\bibliography(?:style)?\{[^}]*\}[ \t]*$\n?`),
	}
	spaceRe = regexp.MustCompile(`\s+`)
)

// Clean strips code fences and document-level commands from a generated
// section and returns the body with the \usepackage lines it declared.
func Clean(section string) (body string, packages []string) {
	body = fenceRe.ReplaceAllString(section, "")
	for _, re := range strippedRe {
		body = re.ReplaceAllString(body, "")
	}
	packages = usepackageRe.FindAllString(body, -1)
	body = usepackageRe.ReplaceAllString(body, "")
	return strings.TrimSpace(body), packages
}

// Document is a review ready to render.
type Document struct {
	Title string

	// Sections are the raw generated sections in document order.
	Sections []string

	// Records are the cited papers. Bracketed keys naming one of them
	// render as \cite.
	Records []types.PaperRecord
}

// Render returns the full LaTeX source. Every \usepackage line found in a
// section is hoisted into the preamble once. The bibliography lists every
// record through \nocite{*}, cited in the text or not.
func (d Document) Render() string {
	var bodies []string
	seen := map[string]bool{}
	var packages []string
	add := func(p string) {
		key := spaceRe.ReplaceAllString(p, "")
		if !seen[key] {
			seen[key] = true
			packages = append(packages, p)
		}
	}
	for _, p := range defaultPackages {
		add(p)
	}
	for _, s := range d.Sections {
		body, pkgs := Clean(s)
		for _, p := range pkgs {
			add(p)
		}
		if body != "" {
			bodies = append(bodies, LinkCitations(body, d.Records))
		}
	}

	var b strings.Builder
	b.WriteString("\\documentclass[11pt]{article}\n")
	for _, p := range packages {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\n\\title{%s}\n\\date{\\today}\n\n\\begin{document}\n\\maketitle\n\n", EscapeLaTeX(d.Title))
	b.WriteString(strings.Join(bodies, "\n\n"))
	b.WriteString("\n\n\\nocite{*}\n\\bibliographystyle{plain}\n")
	fmt.Fprintf(&b, "\\bibliography{%s}\n", strings.TrimSuffix(BibFile, ".bib"))
	b.WriteString("\\end{document}\n")
	return b.String()
}

// DocumentFileName returns "<Title>_Cycle_<n>.tex" with the title made
// safe for a file name.
func DocumentFileName(title string, cycle int) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		name = "SLR"
	}
	return fmt.Sprintf("%s_Cycle_%d.tex", name, cycle)
}

// WriteDocument renders d into dir and returns the file path.
func WriteDocument(dir string, d Document, cycle int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	path := filepath.Join(dir, DocumentFileName(d.Title, cycle))
	if err := os.WriteFile(path, []byte(d.Render()), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

// EscapeLaTeX escapes the characters LaTeX treats as special in text.
func EscapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}
