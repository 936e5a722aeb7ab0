// Package ingest turns raw collection shards into the canonical dataset of a term:
// shards are loaded and normalized in parallel, merged with the previously
// published dataset, enriched with ratings and written atomically.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/coursegraph/internal/config"
	"github.com/hyperjump/coursegraph/internal/merge"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/normalize"
	"github.com/hyperjump/coursegraph/internal/ratings"
	"github.com/hyperjump/coursegraph/internal/storage"
)

// ShardError records why one shard contributed nothing.
type ShardError struct {
	Index int
	Path  string
	Err   error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %d (%s): %v", e.Index, filepath.Base(e.Path), e.Err)
}

func (e *ShardError) Unwrap() error {
	return e.Err
}

// Result describes a finished ingestion run.
type Result struct {
	Term        models.Term
	Path        string
	Stats       merge.Stats
	Bytes       int64
	ShardErrors []*ShardError
	Duration    time.Duration
}

// Pipeline runs ingestion for one term at a time.
type Pipeline struct {
	cfg    *config.Config
	logger *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline over the storage and ingest settings of cfg.
func NewPipeline(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShardPaths lists the raw shard files of term: <shard dir>/<year>_<term>/*.json,
// in lexical order. Shard indexes follow this order. A missing directory means the
// term has no shards yet.
func (p *Pipeline) ShardPaths(term models.Term) ([]string, error) {
	dir := filepath.Join(p.cfg.Storage.ShardDir, term.String())
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read shard directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadShards loads and normalizes every path concurrently. Each task writes only
// its own slot; a failing shard keeps its error in the slot and never stops the
// others. The returned slice is complete once all tasks have finished.
func (p *Pipeline) LoadShards(ctx context.Context, term models.Term, paths []string) ([]merge.Shard, error) {
	shards := make([]merge.Shard, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	if n := p.cfg.Ingest.ShardConcurrency; n > 0 {
		g.SetLimit(n)
	}
	for i, path := range paths {
		g.Go(func() error {
			shards[i] = loadShard(gctx, term, i, path)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return shards, nil
}

func loadShard(ctx context.Context, term models.Term, index int, path string) merge.Shard {
	shard := merge.Shard{Index: index, Path: path}
	if err := ctx.Err(); err != nil {
		shard.Err = err
		return shard
	}
	data, err := os.ReadFile(path)
	if err != nil {
		shard.Err = err
		return shard
	}
	var raws []models.RawCourseRecord
	if err := json.Unmarshal(data, &raws); err != nil {
		shard.Err = fmt.Errorf("failed to decode shard: %w", err)
		return shard
	}
	shard.Records = make([]models.NormalizedCourseRecord, 0, len(raws))
	for _, raw := range raws {
		shard.Records = append(shard.Records, normalize.Normalize(term, raw))
	}
	return shard
}

// Run ingests every shard of term and publishes the canonical dataset. An existing
// dataset of the term is merged in as the prior set, so records missing from the
// current shards survive. A term without shards republishes its prior dataset.
func (p *Pipeline) Run(ctx context.Context, term models.Term) (*Result, error) {
	start := time.Now()
	if p.logger != nil {
		p.logger.Info("ingest started", zap.String("term", term.String()))
	}

	paths, err := p.ShardPaths(term)
	if err != nil {
		return nil, err
	}
	shards, err := p.LoadShards(ctx, term, paths)
	if err != nil {
		return nil, err
	}

	res := &Result{Term: term}
	for _, s := range shards {
		if s.Err == nil {
			continue
		}
		serr := &ShardError{Index: s.Index, Path: s.Path, Err: s.Err}
		res.ShardErrors = append(res.ShardErrors, serr)
		if p.logger != nil {
			p.logger.Warn("shard failed",
				zap.String("term", term.String()),
				zap.Int("shard", s.Index),
				zap.String("path", s.Path),
				zap.Error(s.Err),
			)
		}
	}

	prior, err := p.readPrior(term)
	if err != nil {
		return nil, err
	}
	table, err := ratings.LoadFile(p.cfg.Storage.RatingsJSONPath)
	if err != nil {
		return nil, err
	}

	records := merge.Enrich(merge.Merge(shards, prior), table)
	res.Stats = merge.Summarize(shards, prior, records)
	if len(records) == 0 {
		return res, fmt.Errorf("failed to ingest %s: %w", term, models.ErrEmptyDataset)
	}

	res.Path = filepath.Join(p.cfg.Storage.DatasetDir, DatasetFileName(term))
	if err := WriteDataset(res.Path, records); err != nil {
		return res, err
	}
	if res.Bytes, err = storage.DiskUsageBytes(res.Path); err != nil {
		return res, fmt.Errorf("failed to stat dataset: %w", err)
	}
	res.Duration = time.Since(start)

	if p.logger != nil {
		p.logger.Info("ingest finished",
			zap.String("term", term.String()),
			zap.String("path", res.Path),
			zap.Int("shards", res.Stats.Shards),
			zap.Int("failed_shards", res.Stats.FailedShards),
			zap.Int("records", res.Stats.Records),
			zap.Int("prior_records", res.Stats.PriorRecords),
			zap.Int("rated_instructors", res.Stats.Rated),
			zap.Int64("bytes", res.Bytes),
			zap.Duration("duration", res.Duration),
		)
	}
	return res, nil
}

func (p *Pipeline) readPrior(term models.Term) ([]models.EnrichedCourseRecord, error) {
	path, err := FindDataset(p.cfg.Storage.DatasetDir, term)
	if errors.Is(err, models.ErrUnknownTerm) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prior, err := ReadDataset(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prior dataset: %w", err)
	}
	return prior, nil
}
