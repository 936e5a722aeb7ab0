// Package search answers paginated prefix searches and prerequisite graph
// extraction against the serving index of a term.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/catalog"
	"github.com/hyperjump/coursegraph/internal/config"
	"github.com/hyperjump/coursegraph/internal/models"
)

// Engine runs queries against a Catalog.
type Engine struct {
	catalog *catalog.Catalog
	config  *config.SearchConfig
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a search engine over cat. A nil cfg uses the model defaults.
func NewEngine(cat *catalog.Catalog, cfg *config.SearchConfig, opts ...Option) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	e := &Engine{catalog: cat, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns one page of records matching query.Query. Every query token must
// prefix a token of some indexed field; an empty query matches all records.
// Records whose code equals the query come first, then the rest by code and
// identity key.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.config.DefaultLimit, e.config.MaxLimit); err != nil {
		return nil, err
	}
	term := query.SelectedTerm()

	ti, release, err := e.catalog.Acquire(term)
	if err != nil {
		return nil, err
	}
	defer release()

	matches, err := ti.Match(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	matches = ExactFirst(matches, query.Query)

	start := query.Offset
	end := query.Offset + query.Limit
	if start > len(matches) {
		start = len(matches)
	}
	if end > len(matches) {
		end = len(matches)
	}

	response := &models.SearchResponse{
		Term:       term.String(),
		Query:      query.Query,
		Matches:    matches[start:end:end],
		TotalCount: len(matches),
		Offset:     query.Offset,
		Limit:      query.Limit,
		QueryTime:  time.Since(startTime).Milliseconds(),
	}
	if e.logger != nil {
		e.logger.Debug("search",
			zap.String("term", response.Term),
			zap.String("query", query.Query),
			zap.Int("total", response.TotalCount),
			zap.Int64("query_time_ms", response.QueryTime),
		)
	}
	return response, nil
}

// ExactFirst moves records whose code or spaced code equals query (ignoring case
// and whitespace) to the front, keeping the relative order of both groups.
func ExactFirst(records []*models.EnrichedCourseRecord, query string) []*models.EnrichedCourseRecord {
	want := compact(query)
	if want == "" {
		return records
	}
	out := make([]*models.EnrichedCourseRecord, 0, len(records))
	var rest []*models.EnrichedCourseRecord
	for _, r := range records {
		if compact(r.Code) == want || compact(r.CodeWithSpace) == want {
			out = append(out, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(out, rest...)
}

func compact(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ExtractGraph returns the prerequisite graph of a major, restricted to the
// selected courses and their direct neighbors when a selection is given.
func (e *Engine) ExtractGraph(ctx context.Context, query *models.GraphQuery) (*models.GraphResponse, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	term := query.SelectedTerm()

	ti, release, err := e.catalog.Acquire(term)
	if err != nil {
		return nil, err
	}
	defer release()

	g, ok := ti.Graph(query.Major)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", models.ErrUnknownMajor, query.Major, term)
	}
	nodes, edges := g.Subgraph(query.Courses)
	return &models.GraphResponse{
		Term:  term.String(),
		Major: g.Major,
		Nodes: nodes,
		Edges: edges,
	}, nil
}
