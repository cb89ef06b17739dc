// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
)

// summaryPromptTmpl asks for bibliographic details, a relevance
// discussion and quoted key points, preceded by the verdict line.
var summaryPromptTmpl = template.Must(template.New("summary").Parse(`Summarize the following paper for a systematic literature review (SLR) on the subject [{{.Subject}}]. Start directly with the content; do not open with phrases such as "Okay, here's the...".

The first line of your answer must be exactly one of:
{{.TagPrefix}} {{.TagRelevant}}
{{.TagPrefix}} {{.TagNotRelevant}}

If the paper is not relevant to any aspect of the subject, use {{.TagPrefix}} {{.TagNotRelevant}} and begin the summary with the sentence "{{.Sentinel}} to '{{.Subject}}'." followed by one sentence explaining why.

Otherwise, after the verdict line:
1. List these details: authors, title, journal or venue, pages, year, DOI, URL, and the type of the paper (e.g. empirical study, survey, position paper).
2. Discuss its relevance to the subject.
3. Retrieve the key points as they are written in the paper, quoted.
4. Cite the paper as [{{.Name}}] wherever you refer to it.
{{if .Metadata}}
Known metadata:
{{.Metadata}}
{{end}}{{if .FromFile}}
The paper is attached as a file.
{{else}}
Paper content:
{{.Text}}
{{end}}`))

type promptData struct {
	Subject        string
	Name           string
	Metadata       string
	Text           string
	FromFile       bool
	TagPrefix      string
	TagRelevant    string
	TagNotRelevant string
	Sentinel       string
}

func renderPrompt(d promptData) (string, error) {
	d.TagPrefix = TagPrefix
	d.TagRelevant = TagRelevant
	d.TagNotRelevant = TagNotRelevant
	d.Sentinel = SentinelPhrase

	var buf bytes.Buffer
	if err := summaryPromptTmpl.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// TruncationMarker is appended to paper text cut at the character budget.
const TruncationMarker = "\n\n[... text truncated for length ...]"

// Truncate cuts text to max runes and appends TruncationMarker. A
// non-positive max disables truncation.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + TruncationMarker
}

func metadataLines(in Input) string {
	rec := in.Record
	var lines []string
	if rec.Title != "" {
		lines = append(lines, "Title: "+rec.Title)
	}
	if len(rec.Authors) > 0 {
		lines = append(lines, "Authors: "+strings.Join(rec.Authors, ", "))
	}
	if rec.PublishedYear > 0 {
		lines = append(lines, "Year: "+strconv.Itoa(rec.PublishedYear))
	}
	if rec.DOI != "" {
		lines = append(lines, "DOI: "+rec.DOI)
	}
	if rec.URL != "" {
		lines = append(lines, "URL: "+rec.URL)
	}
	if rec.JournalRef != "" {
		lines = append(lines, "Journal: "+rec.JournalRef)
	}
	return strings.Join(lines, "\n")
}
