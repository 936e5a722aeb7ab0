// Package prereq extracts course-code references from free-text prerequisite
// descriptions and builds per-major directed prerequisite graphs.
package prereq

import (
	"regexp"
	"strings"

	"github.com/hyperjump/coursegraph/internal/normalize"
)

var tokenPattern = regexp.MustCompile(`\b[A-Z]{2,5}\s?\d{3,4}[A-Z]{0,2}\b`)

// ExtractCodes returns the canonical course codes mentioned in text, de-duplicated
// and in order of first appearance. It is a best-effort scan, not a parser of the
// boolean structure ("CS101 or CS102 and MATH200" yields all three codes).
func ExtractCodes(text string) []string {
	matches := tokenPattern.FindAllString(strings.ToUpper(text), -1)
	if len(matches) == 0 {
		return nil
	}
	codes := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		code := normalize.ParseCode(m)
		if !code.Parsed() {
			continue
		}
		if _, ok := seen[code.Code]; ok {
			continue
		}
		seen[code.Code] = struct{}{}
		codes = append(codes, code.Code)
	}
	return codes
}

// MajorKey normalizes a major selector: upper-cased with whitespace collapsed, so
// "cop", "COP" and "Computer &  Information Science" all find their graphs.
func MajorKey(s string) string {
	return strings.ToUpper(normalize.CollapseSpace(s))
}
