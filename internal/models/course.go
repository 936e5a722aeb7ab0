// Package models defines the course records, rating data, queries and responses
// shared across the ingestion pipeline and the query engine.
package models

import (
	"cmp"
	"encoding/json"
	"net/url"
	"strings"
)

const (
	// UnknownField replaces a department or number that could not be parsed from a course code.
	UnknownField = "UNKNOWN"
	// CourseLevelSection is the identity-key discriminator for records with no section
	// or class number; such records describe the course as a whole.
	CourseLevelSection = "~"
)

// RawCourseRecord is one catalog entry as emitted by a collection shard.
// Fields are loosely formatted and may be missing.
type RawCourseRecord struct {
	Code          string   `json:"code"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Prerequisites string   `json:"prerequisites"`
	Department    string   `json:"department,omitempty"`
	Section       string   `json:"section,omitempty"`
	ClassNumber   string   `json:"class_number,omitempty"`
	Credits       string   `json:"credits,omitempty"`
	Meetings      []string `json:"meetings,omitempty"`
	Instructors   []string `json:"instructors,omitempty"`
}

// IdentityKey recognizes two records as the same course record within a term.
type IdentityKey struct {
	Term       Term   `json:"term"`
	Department string `json:"department"`
	Number     string `json:"number"`
	Section    string `json:"section"`
}

// String returns "<year>_<term>/<DEPT><NUMBER>/<section>". Each component is
// path-escaped, so a "/" inside a raw code or section cannot make two keys render
// the same string.
func (k IdentityKey) String() string {
	return url.PathEscape(k.Term.String()) + "/" +
		url.PathEscape(k.Department+k.Number) + "/" +
		url.PathEscape(k.Section)
}

// Compare orders keys field by field: year, term, department, number, section.
func (k IdentityKey) Compare(o IdentityKey) int {
	return cmp.Or(
		strings.Compare(k.Term.Year, o.Term.Year),
		strings.Compare(k.Term.Name, o.Term.Name),
		strings.Compare(k.Department, o.Department),
		strings.Compare(k.Number, o.Number),
		strings.Compare(k.Section, o.Section),
	)
}

// MeetingTime is a parsed meeting string. Days use the codes M T W R F S U and
// Start/End are 24-hour "HH:MM". When Unparseable is set only Raw is meaningful.
type MeetingTime struct {
	Days        []string `json:"days"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Unparseable bool     `json:"unparseable"`
	Raw         string   `json:"raw,omitempty"`
}

// MarshalJSON writes Days as an empty array rather than null when there are none.
func (m MeetingTime) MarshalJSON() ([]byte, error) {
	type meetingJSON MeetingTime
	out := meetingJSON(m)
	if out.Days == nil {
		out.Days = []string{}
	}
	return json.Marshal(out)
}

// String renders the canonical form ("MWF 10:40-11:30"), or Raw when unparseable.
func (m MeetingTime) String() string {
	if m.Unparseable {
		return m.Raw
	}
	return strings.Join(m.Days, "") + " " + m.Start + "-" + m.End
}

// NormalizedCourseRecord is a RawCourseRecord after canonicalization.
type NormalizedCourseRecord struct {
	Key            IdentityKey   `json:"key"`
	Code           string        `json:"code"`
	CodeWithSpace  string        `json:"code_with_space"`
	Department     string        `json:"department"`
	Number         string        `json:"number"`
	DepartmentName string        `json:"department_name"`
	Section        string        `json:"section"`
	ClassNumber    string        `json:"class_number"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Prerequisites  string        `json:"prerequisites"`
	Credits        string        `json:"credits"`
	Meetings       []MeetingTime `json:"meetings"`
	Instructors    []string      `json:"instructors"`
}

// CodeParsed reports whether the course code was recognized.
func (n *NormalizedCourseRecord) CodeParsed() bool {
	return n.Department != UnknownField
}

// Raw projects the record back to raw form using canonical strings, so that
// normalizing the result yields the same record.
func (n *NormalizedCourseRecord) Raw() RawCourseRecord {
	raw := RawCourseRecord{
		Code:          n.Code,
		Title:         n.Title,
		Description:   n.Description,
		Prerequisites: n.Prerequisites,
		Department:    n.DepartmentName,
		Section:       n.Section,
		ClassNumber:   n.ClassNumber,
		Credits:       n.Credits,
	}
	for _, m := range n.Meetings {
		raw.Meetings = append(raw.Meetings, m.String())
	}
	raw.Instructors = append(raw.Instructors, n.Instructors...)
	return raw
}

// FieldCount returns the number of non-empty content fields. Used to pick the
// most complete record among duplicates.
func (n *NormalizedCourseRecord) FieldCount() int {
	count := 0
	for _, s := range []string{n.Title, n.Description, n.Prerequisites, n.DepartmentName, n.Credits, n.ClassNumber} {
		if s != "" {
			count++
		}
	}
	for _, m := range n.Meetings {
		if !m.Unparseable {
			count++
			break
		}
	}
	if len(n.Instructors) > 0 {
		count++
	}
	return count
}

// EnrichedCourseRecord is a normalized record whose instructors carry ratings.
// It is the unit persisted in the canonical per-term dataset and the unit indexed.
type EnrichedCourseRecord struct {
	NormalizedCourseRecord
	Instructors []EnrichedInstructor `json:"instructors"`
}

// ID returns the identity key string, used as the document id in the text index.
func (e *EnrichedCourseRecord) ID() string {
	return e.Key.String()
}

// InstructorNames returns the normalized instructor names in record order.
func (e *EnrichedCourseRecord) InstructorNames() []string {
	names := make([]string, 0, len(e.Instructors))
	for _, inst := range e.Instructors {
		names = append(names, inst.Name)
	}
	return names
}

// Normalized returns the record without ratings. Instructor names are taken from
// the enriched list so records decoded from a dataset file round-trip.
func (e *EnrichedCourseRecord) Normalized() NormalizedCourseRecord {
	n := e.NormalizedCourseRecord
	n.Instructors = e.InstructorNames()
	return n
}
