// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sections

import (
	"bytes"
	"fmt"
	"text/template"
)

// promptTmpl holds one named template per section. The shared blocks
// carry the LaTeX conventions every section prompt repeats.
var promptTmpl = template.Must(template.New("sections").Parse(`
{{define "rules"}}Formatting rules:
- Write LaTeX for an Overleaf project. Start directly with {{.Heading}}; do not open with phrases such as "Okay, here's the...".
- Do not emit \documentclass, \begin{document} or \end{document}. Put any \usepackage lines you need at the very top of your answer.
- Cite papers by name in square brackets, e.g. [PaperName], never by number. Only cite papers that appear in the summaries.
- Tables use the table and tabular environments with a \caption; keep them narrow enough for one column. Figures must be drawn with TikZ or pgfplots, never imported from image files.
- Do not wrap the answer in Markdown code fences.
{{end}}

{{define "scope"}}The systematic literature review (SLR) covers the subject [{{.Subject}}]{{if and .StartYear .EndYear}} for papers published between {{.StartYear}} and {{.EndYear}}{{end}}.
{{if .Outline}}
High-level outline of the review:
{{.Outline}}
{{end}}{{end}}

{{define "feedback"}}{{with .Feedback}}
Reviewer feedback on the previous draft (rating: {{.Rating}}). Address every point below in this revision.
{{range .NewIssues}}- Issue: {{.}}
{{end}}{{range .Section}}- Suggestion for this section: {{.}}
{{end}}{{range .General}}- General suggestion: {{.}}
{{end}}{{end}}{{end}}

{{define "summaries"}}
Summaries of papers:
{{.Summaries}}
{{if .Bibliography}}
Bibliography entries (use these names when citing):
{{.Bibliography}}
{{end}}{{end}}

{{define "related_works"}}Create a comprehensive Related Works section.
{{template "scope" .}}
Use the paper summaries to identify themes, compare approaches and cite papers by name. Every statement must come from one of the papers. Use all the papers, but do not discuss papers whose focus is only partly the subject. End with a table that gives, for each paper, its main idea and how it relates to the subject.
{{template "rules" .}}{{template "feedback" .}}{{template "summaries" .}}{{end}}

{{define "research_methods"}}Create a Research Methods section for the SLR.
{{template "scope" .}}
Include these subsections:
0. The guideline followed (Kitchenham or PRISMA), named explicitly.
1. Research questions, each with sub-questions and a motivation explaining how its answer helps.
2. Mapping questions with a quantitative focus ("How many...", "How much...").
3. The search methodology, with a PRISMA flow diagram. Use the placeholders <<RECORDS_IDENTIFIED_TOTAL>>, <<DUPLICATES_REMOVED>>, <<RECORDS_SCREENED>>, <<RECORDS_EXCLUDED_IRRELEVANT>>, <<RECORDS_EXCLUDED_ERROR>> and <<STUDIES_INCLUDED>> for the counts; they are filled in later.
4. Inclusion and exclusion criteria.
5. Quality assessment criteria.
6. Search strings for arXiv and Scopus built with the PICO technique.
{{template "rules" .}}{{template "feedback" .}}{{template "summaries" .}}
Related Works section:
{{.RelatedWorks}}
{{end}}

{{define "review_findings"}}Create a detailed Review Findings section.
{{template "scope" .}}
Use the Research Methods section and the paper summaries to answer each research question and mapping question, citing papers by name, highlighting gaps and challenges, and reviewing the results.
{{template "rules" .}}{{template "feedback" .}}{{template "summaries" .}}
Research Methods section:
{{.ResearchMethods}}
{{end}}

{{define "discussion_conclusion"}}Create a detailed Discussion and Conclusion section.
{{template "scope" .}}
Use the Review Findings and the paper summaries to discuss key insights, gaps and future research directions, citing papers by name. Close with a short conclusion.
{{template "rules" .}}{{template "feedback" .}}{{template "summaries" .}}
Review Findings section:
{{.ReviewFindings}}
{{end}}

{{define "background"}}Create the Background section.
{{template "scope" .}}
Define every keyword and concept the review relies on so a reader can follow the paper without outside help. Where a term is used in a sense that differs from its usual academic definition, give the meaning it has in this review. Take the terms from the sections below.
{{template "rules" .}}{{template "feedback" .}}
Related Works section:
{{.RelatedWorks}}

Research Methods section:
{{.ResearchMethods}}

Review Findings section:
{{.ReviewFindings}}

Discussion and Conclusion section:
{{.DiscussionConclusion}}
{{end}}

{{define "abstract_intro"}}Create three short parts that complete the SLR titled [{{.Subject}}]: an abstract, an introduction, and a keywords line.
{{template "scope" .}}
Base them on the four sections below.
{{template "rules" .}}{{template "feedback" .}}
Related Works section:
{{.RelatedWorks}}

Research Methods section:
{{.ResearchMethods}}

Review Findings section:
{{.ReviewFindings}}

Discussion and Conclusion section:
{{.DiscussionConclusion}}
{{end}}

{{define "outline"}}Draft a high-level outline for a systematic literature review on the subject [{{.Subject}}]{{if and .StartYear .EndYear}} covering {{.StartYear}} to {{.EndYear}}{{end}}.
List the sections Abstract and Introduction, Background, Related Works, Research Methods, Review Findings, and Discussion and Conclusion. Under each, give three to six bullet points naming the themes, research questions and papers it should cover. Answer in plain text, not LaTeX.

Summaries of papers:
{{.Summaries}}
{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := promptTmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", name, err)
	}
	return buf.String(), nil
}
