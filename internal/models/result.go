package models

import "time"

// SearchResponse is one page of search matches plus the total match count.
type SearchResponse struct {
	Term       string                  `json:"term"`
	Query      string                  `json:"query"`
	Matches    []*EnrichedCourseRecord `json:"matches"`
	TotalCount int                     `json:"total_count"`
	Offset     int                     `json:"offset"`
	Limit      int                     `json:"limit"`
	QueryTime  int64                   `json:"query_time_ms"`
}

// GraphNode is a course code in an extracted graph. Selected marks courses the
// caller asked for, as opposed to neighbors pulled in by the one-hop expansion.
type GraphNode struct {
	ID       string `json:"id"`
	Selected bool   `json:"selected"`
}

// GraphEdge means Source is a prerequisite of Target.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// GraphResponse is an extracted prerequisite (sub)graph.
type GraphResponse struct {
	Term  string      `json:"term"`
	Major string      `json:"major"`
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// TermStatus describes the index currently serving a term.
type TermStatus struct {
	Term    string    `json:"term"`
	BuildID string    `json:"build_id"`
	BuiltAt time.Time `json:"built_at"`
	Courses int       `json:"courses"`
	Majors  int       `json:"majors"`
}
