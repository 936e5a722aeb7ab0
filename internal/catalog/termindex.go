// Package catalog builds per-term indexes and serves them to concurrent readers
// while rebuilds swap in replacements.
package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/keyword"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/prereq"
)

// TermIndex is the immutable query structure of one term: the text index, the
// records in canonical order and the prerequisite graph of every major.
type TermIndex struct {
	Term    models.Term
	BuildID string
	BuiltAt time.Time

	keyword  *keyword.BleveIndex
	records  []*models.EnrichedCourseRecord
	position map[string]int
	graphs   map[string]*prereq.Graph

	mu     sync.RWMutex
	closed bool
}

// BuildOptions configures Build.
type BuildOptions struct {
	// IndexDir, when set, holds on-disk text indexes under <IndexDir>/<term>/<build id>.
	IndexDir string
	Logger   *zap.Logger
}

// Build constructs a TermIndex from a canonical dataset. It fails with
// models.ErrEmptyDataset when records is empty. Records are held in canonical
// order: course code ascending, then identity key.
func Build(ctx context.Context, term models.Term, records []models.EnrichedCourseRecord, opts BuildOptions) (*TermIndex, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("failed to build index for %s: %w", term, models.ErrEmptyDataset)
	}

	ti := &TermIndex{
		Term:     term,
		BuildID:  uuid.New().String(),
		BuiltAt:  time.Now(),
		records:  make([]*models.EnrichedCourseRecord, 0, len(records)),
		position: make(map[string]int, len(records)),
	}

	seen := make(map[models.IdentityKey]struct{}, len(records))
	duplicates := 0
	for i := range records {
		r := records[i]
		if _, ok := seen[r.Key]; ok {
			duplicates++
			continue
		}
		seen[r.Key] = struct{}{}
		ti.records = append(ti.records, &r)
	}
	sort.Slice(ti.records, func(i, j int) bool {
		a, b := ti.records[i], ti.records[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Key.Compare(b.Key) < 0
	})
	for i, r := range ti.records {
		ti.position[r.ID()] = i
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := ""
	if opts.IndexDir != "" {
		path = filepath.Join(opts.IndexDir, term.String(), ti.BuildID)
	}
	idx, err := keyword.NewBleveIndex(path)
	if err != nil {
		return nil, err
	}
	docs := make([]*keyword.CourseDocument, len(ti.records))
	for i, r := range ti.records {
		docs[i] = keyword.NewCourseDocument(r)
	}
	if err := idx.IndexBatch(ctx, docs); err != nil {
		_ = idx.Destroy()
		return nil, fmt.Errorf("failed to index %s: %w", term, err)
	}
	ti.keyword = idx

	normalized := make([]models.NormalizedCourseRecord, len(ti.records))
	for i, r := range ti.records {
		normalized[i] = r.Normalized()
	}
	ti.graphs = prereq.Build(normalized)

	if opts.Logger != nil {
		cycles, edges := 0, 0
		for _, g := range ti.graphs {
			cycles += g.Cycles()
			edges += g.EdgeCount()
		}
		opts.Logger.Info("term index built",
			zap.String("term", term.String()),
			zap.String("build_id", ti.BuildID),
			zap.Int("courses", len(ti.records)),
			zap.Int("duplicates_skipped", duplicates),
			zap.Int("majors", len(ti.graphs)),
			zap.Int("edges", edges),
			zap.Int("cycles_detected", cycles),
		)
	}
	return ti, nil
}

// acquire registers a reader. It fails once the index has been retired.
func (ti *TermIndex) acquire() bool {
	ti.mu.RLock()
	if ti.closed {
		ti.mu.RUnlock()
		return false
	}
	return true
}

func (ti *TermIndex) release() {
	ti.mu.RUnlock()
}

// retire waits for in-flight readers, then releases the text index.
func (ti *TermIndex) retire() error {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.closed {
		return nil
	}
	ti.closed = true
	return ti.keyword.Destroy()
}

// Match returns the records matching query in canonical order.
func (ti *TermIndex) Match(ctx context.Context, query string) ([]*models.EnrichedCourseRecord, error) {
	ids, err := ti.keyword.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	positions := make([]int, 0, len(ids))
	for _, id := range ids {
		if pos, ok := ti.position[id]; ok {
			positions = append(positions, pos)
		}
	}
	sort.Ints(positions)
	out := make([]*models.EnrichedCourseRecord, len(positions))
	for i, pos := range positions {
		out[i] = ti.records[pos]
	}
	return out, nil
}

// Records returns every record in canonical order. The slice must not be modified.
func (ti *TermIndex) Records() []*models.EnrichedCourseRecord {
	return ti.records
}

// Graph returns the prerequisite graph of major. The selector is matched the way
// majors are keyed: code prefix or department name, case-insensitive.
func (ti *TermIndex) Graph(major string) (*prereq.Graph, bool) {
	g, ok := ti.graphs[prereq.MajorKey(major)]
	return g, ok
}

// Majors returns the major keys in ascending order.
func (ti *TermIndex) Majors() []string {
	majors := make([]string, 0, len(ti.graphs))
	for m := range ti.graphs {
		majors = append(majors, m)
	}
	sort.Strings(majors)
	return majors
}

// Status describes the index.
func (ti *TermIndex) Status() models.TermStatus {
	return models.TermStatus{
		Term:    ti.Term.String(),
		BuildID: ti.BuildID,
		BuiltAt: ti.BuiltAt,
		Courses: len(ti.records),
		Majors:  len(ti.graphs),
	}
}
