package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/models"
)

// Loader reads the canonical dataset of a term.
type Loader interface {
	Load(ctx context.Context, term models.Term) ([]models.EnrichedCourseRecord, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, term models.Term) ([]models.EnrichedCourseRecord, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, term models.Term) ([]models.EnrichedCourseRecord, error) {
	return f(ctx, term)
}

type slot struct {
	current atomic.Pointer[TermIndex]
	// rebuild admits one rebuild per term at a time.
	rebuild sync.Mutex
}

// Catalog holds the serving TermIndex of every term. Readers never block on a
// rebuild: they keep the index they acquired until they release it, and a new
// index becomes visible in a single pointer swap.
type Catalog struct {
	loader   Loader
	indexDir string
	logger   *zap.Logger

	mu    sync.Mutex
	slots map[models.Term]*slot
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithIndexDir stores text indexes on disk under dir instead of in memory.
func WithIndexDir(dir string) Option {
	return func(c *Catalog) {
		c.indexDir = dir
	}
}

// New creates an empty Catalog that reads datasets through loader.
func New(loader Loader, opts ...Option) *Catalog {
	c := &Catalog{
		loader: loader,
		slots:  make(map[models.Term]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) slot(term models.Term, create bool) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[term]
	if !ok && create {
		s = &slot{}
		c.slots[term] = s
	}
	return s
}

// Rebuild loads the dataset of term, builds a new TermIndex and swaps it in.
// On any failure the previous index, if one exists, keeps serving.
func (c *Catalog) Rebuild(ctx context.Context, term models.Term) (models.TermStatus, error) {
	s := c.slot(term, true)
	s.rebuild.Lock()
	defer s.rebuild.Unlock()

	records, err := c.loader.Load(ctx, term)
	if err != nil {
		c.logFailure(term, err)
		return models.TermStatus{}, fmt.Errorf("failed to load dataset for %s: %w", term, err)
	}
	ti, err := Build(ctx, term, records, BuildOptions{IndexDir: c.indexDir, Logger: c.logger})
	if err != nil {
		c.logFailure(term, err)
		return models.TermStatus{}, err
	}

	old := s.current.Swap(ti)
	if old != nil {
		if err := old.retire(); err != nil && c.logger != nil {
			c.logger.Warn("failed to release previous index",
				zap.String("term", term.String()),
				zap.String("build_id", old.BuildID),
				zap.Error(err),
			)
		}
	}
	return ti.Status(), nil
}

func (c *Catalog) logFailure(term models.Term, err error) {
	if c.logger == nil {
		return
	}
	fields := []zap.Field{zap.String("term", term.String()), zap.Error(err)}
	if s := c.slot(term, false); s != nil {
		if cur := s.current.Load(); cur != nil {
			fields = append(fields, zap.String("serving_build_id", cur.BuildID))
		}
	}
	c.logger.Error("term index rebuild failed", fields...)
}

// Acquire returns the serving index of term and a release function the caller
// must invoke when done. It fails with models.ErrUnknownTerm when the term has
// never been built successfully.
func (c *Catalog) Acquire(term models.Term) (*TermIndex, func(), error) {
	s := c.slot(term, false)
	if s == nil {
		return nil, nil, fmt.Errorf("%w: %s", models.ErrUnknownTerm, term)
	}
	for {
		ti := s.current.Load()
		if ti == nil {
			return nil, nil, fmt.Errorf("%w: %s", models.ErrUnknownTerm, term)
		}
		if ti.acquire() {
			return ti, ti.release, nil
		}
		// Retired between Load and acquire; the replacement is already installed.
	}
}

// Terms returns the status of every serving term, ordered by term string.
func (c *Catalog) Terms() []models.TermStatus {
	c.mu.Lock()
	slots := make([]*slot, 0, len(c.slots))
	for _, s := range c.slots {
		slots = append(slots, s)
	}
	c.mu.Unlock()

	out := make([]models.TermStatus, 0, len(slots))
	for _, s := range slots {
		if ti := s.current.Load(); ti != nil {
			out = append(out, ti.Status())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// Close retires every index. The Catalog must not be used afterwards.
func (c *Catalog) Close() error {
	c.mu.Lock()
	slots := make(map[models.Term]*slot, len(c.slots))
	for term, s := range c.slots {
		slots[term] = s
	}
	c.mu.Unlock()

	var errs []error
	for term, s := range slots {
		s.rebuild.Lock()
		if ti := s.current.Swap(nil); ti != nil {
			if err := ti.retire(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close index for %s: %w", term, err))
			}
		}
		s.rebuild.Unlock()
	}
	return errors.Join(errs...)
}
