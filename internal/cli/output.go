// Package cli formats command results for the coursegraph CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/coursegraph/internal/ingest"
	"github.com/hyperjump/coursegraph/internal/merge"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/ratings"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per item.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const rule = "─────────────────────────────────────────────────────────"

// WriteSearchResults writes one page of search matches to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, m := range response.Matches {
			fmt.Fprintf(w, "%s\t%s\n", m.ID(), m.Title)
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	from, to := response.Offset+1, response.Offset+len(response.Matches)
	if len(response.Matches) == 0 {
		from = to
	}
	fmt.Fprintf(w, "\nFound %d courses for %q in %s (%dms), showing %d-%d\n\n",
		response.TotalCount, response.Query, response.Term, response.QueryTime, from, to)
	for _, m := range response.Matches {
		writeCourse(w, m)
	}
}

func writeCourse(w io.Writer, c *models.EnrichedCourseRecord) {
	fmt.Fprintln(w, rule)
	header := c.Code
	if c.Title != "" {
		header += "  " + c.Title
	}
	if c.Section != models.CourseLevelSection && c.Section != "" {
		header += "  [section " + c.Section + "]"
	}
	fmt.Fprintln(w, header)
	if c.DepartmentName != "" {
		fmt.Fprintf(w, "Department: %s\n", c.DepartmentName)
	}
	if c.Credits != "" {
		fmt.Fprintf(w, "Credits: %s\n", c.Credits)
	}
	if len(c.Meetings) > 0 {
		times := make([]string, len(c.Meetings))
		for i, m := range c.Meetings {
			times[i] = m.String()
		}
		fmt.Fprintf(w, "Meetings: %s\n", strings.Join(times, "; "))
	}
	if len(c.Instructors) > 0 {
		names := make([]string, len(c.Instructors))
		for i, inst := range c.Instructors {
			names[i] = formatInstructor(inst)
		}
		fmt.Fprintf(w, "Instructors: %s\n", strings.Join(names, ", "))
	}
	if c.Prerequisites != "" {
		fmt.Fprintf(w, "Prerequisites: %s\n", c.Prerequisites)
	}
	if c.Description != "" {
		fmt.Fprintf(w, "\n%s\n", Truncate(c.Description, 200))
	}
	fmt.Fprintln(w)
}

func formatInstructor(inst models.EnrichedInstructor) string {
	if !inst.Rated || inst.Rating == nil {
		return inst.Name + " (unrated)"
	}
	return fmt.Sprintf("%s (%.1f, difficulty %.1f)", inst.Name, inst.Rating.AvgRating, inst.Rating.AvgDifficulty)
}

// WriteGraph writes an extracted prerequisite graph to w in the given format.
// Text and compact list edges as "PREREQ -> COURSE"; selected nodes are starred.
func WriteGraph(w io.Writer, graph *models.GraphResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, graph)
	case OutputCompact:
		for _, e := range graph.Edges {
			fmt.Fprintf(w, "%s -> %s\n", e.Source, e.Target)
		}
		return nil
	default:
		fmt.Fprintf(w, "\n%s prerequisites in %s: %d courses, %d edges\n\n",
			graph.Major, graph.Term, len(graph.Nodes), len(graph.Edges))
		for _, n := range graph.Nodes {
			mark := " "
			if n.Selected {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %s\n", mark, n.ID)
		}
		if len(graph.Edges) > 0 {
			fmt.Fprintln(w)
			for _, e := range graph.Edges {
				fmt.Fprintf(w, "  %s -> %s\n", e.Source, e.Target)
			}
		}
		return nil
	}
}

// WriteTerms writes the serving status of each term.
func WriteTerms(w io.Writer, terms []models.TermStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"terms": terms})
	}
	for _, t := range terms {
		if format == OutputCompact {
			fmt.Fprintln(w, t.Term)
			continue
		}
		fmt.Fprintf(w, "%-14s courses: %-6d majors: %-4d build: %s (%s)\n",
			t.Term, t.Courses, t.Majors, t.BuildID, t.BuiltAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// WriteIngestResult summarizes an ingestion run.
func WriteIngestResult(w io.Writer, res *ingest.Result, format OutputFormat) error {
	if format == OutputJSON {
		out := struct {
			Term        string      `json:"term"`
			Path        string      `json:"path"`
			Bytes       int64       `json:"bytes"`
			DurationMS  int64       `json:"duration_ms"`
			ShardErrors []string    `json:"shard_errors"`
			Stats       merge.Stats `json:"stats"`
		}{
			Term:        res.Term.String(),
			Path:        res.Path,
			Bytes:       res.Bytes,
			DurationMS:  res.Duration.Milliseconds(),
			ShardErrors: []string{},
			Stats:       res.Stats,
		}
		for _, e := range res.ShardErrors {
			out.ShardErrors = append(out.ShardErrors, e.Error())
		}
		return writeJSON(w, out)
	}
	st := res.Stats
	fmt.Fprintf(w, "term:                %s\n", res.Term)
	fmt.Fprintf(w, "dataset:             %s (%d bytes)\n", res.Path, res.Bytes)
	fmt.Fprintf(w, "shards:              %d (%d failed, %d empty)\n", st.Shards, st.FailedShards, st.EmptyShards)
	fmt.Fprintf(w, "records:             %d   # from %d shard records and %d prior\n", st.Records, st.InputRecords, st.PriorRecords)
	fmt.Fprintf(w, "instructors rated:   %d of %d\n", st.Rated, st.Rated+st.Unrated)
	for _, e := range res.ShardErrors {
		fmt.Fprintf(w, "  failed: %s\n", e.Error())
	}
	return nil
}

// WriteRefreshStats summarizes a rating refresh.
func WriteRefreshStats(w io.Writer, st *ratings.RefreshStats, published int, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]int{
			"requested": st.Requested,
			"stale":     st.Stale,
			"rated":     st.Rated,
			"failed":    st.Failed,
			"retries":   st.Retries,
			"published": published,
		})
	}
	fmt.Fprintf(w, "names:      %d (%d stale)\n", st.Requested, st.Stale)
	fmt.Fprintf(w, "rated:      %d\n", st.Rated)
	fmt.Fprintf(w, "failed:     %d (%d retries)\n", st.Failed, st.Retries)
	fmt.Fprintf(w, "published:  %d ratings\n", published)
	return nil
}

// Truncate shortens s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
