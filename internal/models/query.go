package models

import "fmt"

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// SearchQuery is a paginated prefix search against one term.
type SearchQuery struct {
	Year   string `json:"year"`
	Term   string `json:"term"`
	Query  string `json:"query"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Validate requires a term selector and clamps paging. A non-positive limit becomes
// defaultLimit, a limit above maxLimit becomes maxLimit, and a negative offset becomes 0.
// Zero defaultLimit/maxLimit fall back to DefaultSearchLimit/MaxSearchLimit.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if q.Year == "" || q.Term == "" {
		return fmt.Errorf("%w: year and term are required", ErrInvalidQuery)
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxSearchLimit
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}

// SelectedTerm returns the normalized term selector.
func (q *SearchQuery) SelectedTerm() Term {
	return NewTerm(q.Year, q.Term)
}

// GraphQuery asks for the prerequisite graph of a major, optionally restricted to
// the selected courses and their direct neighbors.
type GraphQuery struct {
	Year    string   `json:"year"`
	Term    string   `json:"term"`
	Major   string   `json:"major"`
	Courses []string `json:"courses"`
}

// Validate requires a term selector and a major.
func (q *GraphQuery) Validate() error {
	if q.Year == "" || q.Term == "" {
		return fmt.Errorf("%w: year and term are required", ErrInvalidQuery)
	}
	if q.Major == "" {
		return fmt.Errorf("%w: major is required", ErrInvalidQuery)
	}
	return nil
}

// SelectedTerm returns the normalized term selector.
func (q *GraphQuery) SelectedTerm() Term {
	return NewTerm(q.Year, q.Term)
}
