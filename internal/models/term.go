package models

import (
	"fmt"
	"strings"
)

// Term identifies one academic offering period, e.g. year "25" and name "fall".
// It is the partition key for datasets, indices and graphs.
type Term struct {
	Year string `json:"year" yaml:"year"`
	Name string `json:"term" yaml:"term"`
}

// NewTerm trims the year and lower-cases the term name.
func NewTerm(year, name string) Term {
	return Term{
		Year: strings.TrimSpace(year),
		Name: strings.ToLower(strings.TrimSpace(name)),
	}
}

// ParseTerm parses the "<year>_<name>" form produced by Term.String.
func ParseTerm(s string) (Term, error) {
	year, name, ok := strings.Cut(strings.TrimSpace(s), "_")
	if !ok || year == "" || name == "" {
		return Term{}, fmt.Errorf("invalid term %q: want <year>_<name>", s)
	}
	return NewTerm(year, name), nil
}

// String returns "<year>_<name>".
func (t Term) String() string {
	return t.Year + "_" + t.Name
}

// IsZero reports whether year or name is missing.
func (t Term) IsZero() bool {
	return t.Year == "" || t.Name == ""
}
