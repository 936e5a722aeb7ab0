package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/hyperjump/coursegraph/internal/models"
)

// codePattern matches a whitespace-free, upper-cased course code such as
// "COP3502C", "CS-101" or "MAC_2311".
var codePattern = regexp.MustCompile(`^([A-Z]{2,5})[\-_]?(\d{3,4}[A-Z]{0,2})$`)

// Code is a parsed course code.
type Code struct {
	Code          string
	CodeWithSpace string
	Department    string
	Number        string
}

// ParseCode canonicalizes a loosely formatted course code. Unrecognized codes keep
// their cleaned text as Code and Number, with Department set to models.UnknownField,
// so they stay searchable and distinct from each other.
func ParseCode(raw string) Code {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)

	if m := codePattern.FindStringSubmatch(cleaned); m != nil {
		return Code{
			Code:          m[1] + m[2],
			CodeWithSpace: m[1] + " " + m[2],
			Department:    m[1],
			Number:        m[2],
		}
	}
	if cleaned == "" {
		cleaned = models.UnknownField
	}
	return Code{
		Code:          cleaned,
		CodeWithSpace: cleaned,
		Department:    models.UnknownField,
		Number:        cleaned,
	}
}

// Parsed reports whether the code matched the course-code pattern.
func (c Code) Parsed() bool {
	return c.Department != models.UnknownField
}

// BaseCode strips a trailing letter suffix from a parsed code, so lab and
// honors variants ("COP3502C") share the base "COP3502".
func BaseCode(code string) string {
	return strings.TrimRightFunc(code, func(r rune) bool {
		return r >= 'A' && r <= 'Z'
	})
}
