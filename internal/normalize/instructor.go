package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]struct{}{
	"dr": {}, "prof": {}, "professor": {}, "mr": {}, "mrs": {}, "ms": {}, "mx": {},
}

var suffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "phd": {}, "md": {},
}

// placeholders are catalog stand-ins for an unassigned instructor.
var placeholders = map[string]struct{}{
	"staff": {}, "tba": {}, "tbd": {},
}

// InstructorName canonicalizes an instructor name so the same person maps to one key
// across shards and the rating side-table: diacritics folded, lower-cased, periods
// dropped, "Last, First" reordered, honorifics and suffixes stripped, whitespace
// collapsed. Placeholder names such as "Staff" normalize to "".
func InstructorName(raw string) string {
	s := strings.ToLower(foldDiacritics(raw))
	s = strings.ReplaceAll(s, ".", "")

	if strings.Contains(s, ",") {
		var parts []string
		for _, p := range strings.Split(s, ",") {
			p = stripAffixes(strings.Fields(p))
			if p == "" {
				continue
			}
			parts = append(parts, p)
		}
		if len(parts) == 2 {
			parts[0], parts[1] = parts[1], parts[0]
		}
		s = strings.Join(parts, " ")
	}

	name := stripAffixes(strings.Fields(s))
	if _, ok := placeholders[name]; ok {
		return ""
	}
	return name
}

func foldDiacritics(s string) string {
	// Chains carry buffers and are not safe for concurrent use, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// stripAffixes drops leading honorifics and trailing suffixes and joins the rest.
func stripAffixes(words []string) string {
	for len(words) > 0 && isHonorific(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func isHonorific(w string) bool {
	_, ok := honorifics[w]
	return ok
}

func isSuffix(w string) bool {
	_, ok := suffixes[w]
	return ok
}
