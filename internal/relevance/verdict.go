// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance summarizes papers against the review subject and
// decides which ones stay in the working set.
//
// Replies open with a tagged line, "RELEVANCE: RELEVANT" or
// "RELEVANCE: NOT_RELEVANT", followed by the summary. The legacy sentinel
// phrase is still honoured: a reply containing it is always irrelevant,
// even when tagged otherwise, so cached summaries from older runs keep
// their verdicts. The phrase match is a plain substring test and can fire
// on a summary that merely quotes it.
package relevance

import (
	"strings"

	"github.com/pdiddy/slr-engine/internal/llm"
)

// Sentinel phrases marking an irrelevant summary.
const (
	SentinelPhrase      = "This paper does not appear to be relevant"
	SentinelPhraseShort = "does not appear relevant"
)

// TagPrefix opens the machine-readable verdict line.
const TagPrefix = "RELEVANCE:"

// Tag values.
const (
	TagRelevant    = "RELEVANT"
	TagNotRelevant = "NOT_RELEVANT"
)

// Verdict is the relevance decision for one summary.
type Verdict int

const (
	VerdictRelevant Verdict = iota
	VerdictIrrelevant
	VerdictError
)

func (v Verdict) String() string {
	switch v {
	case VerdictRelevant:
		return "relevant"
	case VerdictIrrelevant:
		return "irrelevant"
	case VerdictError:
		return "error"
	}
	return "unknown"
}

// Classify decides the verdict for a summary. Error and skip markers win,
// then the sentinel phrases, then the tagged line. Untagged summaries
// without a sentinel are relevant.
func Classify(summary string) Verdict {
	if llm.IsErrorText(summary) || strings.TrimSpace(summary) == "" {
		return VerdictError
	}
	if HasSentinel(summary) {
		return VerdictIrrelevant
	}
	if tag, ok := parseTag(summary); ok && tag == TagNotRelevant {
		return VerdictIrrelevant
	}
	return VerdictRelevant
}

// HasSentinel reports whether summary contains either sentinel phrase.
func HasSentinel(summary string) bool {
	return strings.Contains(summary, SentinelPhrase) || strings.Contains(summary, SentinelPhraseShort)
}

// Body returns the summary without its verdict line.
func Body(summary string) string {
	s := strings.TrimLeft(summary, " \t\r\n")
	line, rest, _ := strings.Cut(s, "\n")
	if _, ok := tagValue(line); ok {
		return strings.TrimLeft(rest, " \t\r\n")
	}
	return summary
}

// parseTag reads the verdict from the first non-empty line.
func parseTag(summary string) (string, bool) {
	for _, line := range strings.Split(summary, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return tagValue(line)
	}
	return "", false
}

func tagValue(line string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(line), "*_` ")
	if len(s) < len(TagPrefix) || !strings.EqualFold(s[:len(TagPrefix)], TagPrefix) {
		return "", false
	}
	v := strings.ToUpper(strings.Trim(strings.TrimSpace(s[len(TagPrefix):]), "*_`. "))
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	switch v {
	case TagRelevant:
		return TagRelevant, true
	case TagNotRelevant, "IRRELEVANT":
		return TagNotRelevant, true
	}
	return "", false
}
