package types

import "sort"

// PRISMA tally keys. Each key doubles as a LaTeX placeholder name.
const (
	CountIdentifiedArxiv         = "RECORDS_IDENTIFIED_ARXIV"
	CountIdentifiedScopus        = "RECORDS_IDENTIFIED_SCOPUS"
	CountIdentifiedManual        = "RECORDS_IDENTIFIED_MANUAL"
	CountIdentifiedSnowball      = "RECORDS_IDENTIFIED_SNOWBALL"
	CountIdentifiedSupplementary = "RECORDS_IDENTIFIED_SUPPLEMENTARY"
	CountIdentifiedTotal         = "RECORDS_IDENTIFIED_TOTAL"
	CountDuplicatesRemoved       = "DUPLICATES_REMOVED"
	CountScreened                = "RECORDS_SCREENED"
	CountExcludedIrrelevant      = "RECORDS_EXCLUDED_IRRELEVANT"
	CountExcludedError           = "RECORDS_EXCLUDED_ERROR"
	CountIncluded                = "STUDIES_INCLUDED"
)

// Counts is the PRISMA tally threaded through a run.
type Counts map[string]int

// Add increments key by n.
func (c Counts) Add(key string, n int) {
	c[key] += n
}

// Get returns the value for key and whether it was ever set.
func (c Counts) Get(key string) (int, bool) {
	v, ok := c[key]
	return v, ok
}

// Keys returns the tally keys in sorted order.
func (c Counts) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IdentifiedKey maps a record source to its identification counter.
func IdentifiedKey(s Source) string {
	switch {
	case s == SourceArxiv:
		return CountIdentifiedArxiv
	case s == SourceScopus:
		return CountIdentifiedScopus
	case s == SourceManual:
		return CountIdentifiedManual
	case s == s.Base().WithSuffix(OriginSnowball):
		return CountIdentifiedSnowball
	case s == s.Base().WithSuffix(OriginSupplementary):
		return CountIdentifiedSupplementary
	}
	return CountIdentifiedTotal
}
