// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package assemble

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/slr-engine/pkg/types"
)

// NotAvailable replaces placeholders that name no known count.
const NotAvailable = "N/A"

var placeholderRe = regexp.MustCompile(`<<([A-Za-z0-9_ ]+)>>`)

// Substitute replaces every <<NAME>> placeholder with its count. Names are
// matched after upper-casing and turning spaces into underscores, so
// <<records screened>> finds RECORDS_SCREENED.
func Substitute(tex string, counts types.Counts) string {
	return placeholderRe.ReplaceAllStringFunc(tex, func(m string) string {
		if v, ok := counts.Get(countKey(placeholderRe.FindStringSubmatch(m)[1])); ok {
			return strconv.Itoa(v)
		}
		return NotAvailable
	})
}

// MissingPlaceholders returns the distinct placeholder names in tex that
// Substitute would fill with NotAvailable, in order of first appearance.
func MissingPlaceholders(tex string, counts types.Counts) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(tex, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		if _, ok := counts.Get(countKey(m[1])); !ok {
			out = append(out, m[1])
		}
	}
	return out
}

func countKey(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), "_"))
}
