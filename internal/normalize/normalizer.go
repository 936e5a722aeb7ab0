// Package normalize canonicalizes raw catalog records. Every function here is total:
// a sub-field that cannot be parsed degrades to an explicit sentinel instead of
// failing the record.
package normalize

import (
	"strings"
	"unicode"

	"github.com/hyperjump/coursegraph/internal/models"
)

// Normalize canonicalizes one raw record collected for term.
func Normalize(term models.Term, raw models.RawCourseRecord) models.NormalizedCourseRecord {
	term = models.NewTerm(term.Year, term.Name)
	code := ParseCode(raw.Code)

	n := models.NormalizedCourseRecord{
		Code:           code.Code,
		CodeWithSpace:  code.CodeWithSpace,
		Department:     code.Department,
		Number:         code.Number,
		DepartmentName: CollapseSpace(raw.Department),
		Section:        CollapseSpace(raw.Section),
		ClassNumber:    CollapseSpace(raw.ClassNumber),
		Title:          CollapseSpace(raw.Title),
		Description:    CollapseSpace(raw.Description),
		Prerequisites:  CollapseSpace(raw.Prerequisites),
		Credits:        CollapseSpace(raw.Credits),
		Meetings:       normalizeMeetings(raw.Meetings),
		Instructors:    normalizeInstructors(raw.Instructors),
	}
	n.Key = models.IdentityKey{
		Term:       term,
		Department: n.Department,
		Number:     n.Number,
		Section:    discriminator(n.Section, n.ClassNumber),
	}
	return n
}

func discriminator(section, classNumber string) string {
	switch {
	case section != "":
		return section
	case classNumber != "":
		return classNumber
	default:
		return models.CourseLevelSection
	}
}

func normalizeMeetings(raw []string) []models.MeetingTime {
	out := make([]models.MeetingTime, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}
		m := ParseMeeting(s)
		key := m.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

func normalizeInstructors(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		name := InstructorName(s)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	wasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
