package ratings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/storage"
)

// Fetcher looks up one instructor at the upstream rating source. It returns a
// nil rating when the source has no match, and the HTTP-style status code of the
// attempt. Implementations live outside this module.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (*models.InstructorRating, int, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, name string) (*models.InstructorRating, int, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, name string) (*models.InstructorRating, int, error) {
	return f(ctx, name)
}

// TableFetcher answers lookups from a previously exported side-table, such as
// the output of an external collector. Names missing from the table are a
// successful lookup with no match.
func TableFetcher(t Table) Fetcher {
	return FetcherFunc(func(ctx context.Context, name string) (*models.InstructorRating, int, error) {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		r, ok := t.Lookup(name)
		if !ok {
			return nil, http.StatusOK, nil
		}
		return &r, http.StatusOK, nil
	})
}

// RefreshStats summarizes one refresh run.
type RefreshStats struct {
	Requested int
	Stale     int
	Rated     int
	Failed    int
	Retries   int
}

// Refresher re-fetches stale cache entries and produces rating snapshots.
type Refresher struct {
	store       storage.RatingStore
	fetcher     Fetcher
	logger      *zap.Logger
	workers     int
	maxRetries  int
	backoffBase time.Duration
	staleAfter  time.Duration
	limiter     *rate.Limiter
	now         func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// WithWorkers bounds concurrent lookups.
func WithWorkers(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRetry sets how often a rate-limited (429) lookup is retried and the base
// delay, doubled on every attempt.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(r *Refresher) {
		if maxRetries >= 0 {
			r.maxRetries = maxRetries
		}
		if base > 0 {
			r.backoffBase = base
		}
	}
}

// WithRequestsPerSecond spaces lookups. Zero or less means unlimited.
func WithRequestsPerSecond(rps float64) Option {
	return func(r *Refresher) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			r.limiter = rate.NewLimiter(rate.Inf, 1)
		}
	}
}

// WithStaleAfter sets the age after which a cached lookup is repeated.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.staleAfter = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		r.now = now
	}
}

// NewRefresher creates a Refresher over store and fetcher.
func NewRefresher(store storage.RatingStore, fetcher Fetcher, opts ...Option) *Refresher {
	r := &Refresher{
		store:       store,
		fetcher:     fetcher,
		workers:     4,
		maxRetries:  3,
		backoffBase: 500 * time.Millisecond,
		staleAfter:  7 * 24 * time.Hour,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type lookup struct {
	row     *storage.CachedRating
	failed  bool
	retries int
}

// Refresh looks up every name whose cache entry is missing or stale and records
// the outcomes. Individual lookup failures are recorded, not returned; only
// cache or context errors fail the run.
func (r *Refresher) Refresh(ctx context.Context, names []string) (*RefreshStats, error) {
	stats := &RefreshStats{Requested: len(names)}
	stale, err := r.store.StaleNames(ctx, names, r.staleAfter, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale names: %w", err)
	}
	stats.Stale = len(stale)
	if len(stale) == 0 {
		return stats, nil
	}

	results := make([]lookup, len(stale))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, name := range stale {
		g.Go(func() error {
			res, err := r.lookup(gctx, name)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows := make([]*storage.CachedRating, 0, len(results))
	for _, res := range results {
		rows = append(rows, res.row)
		stats.Retries += res.retries
		switch {
		case res.failed:
			stats.Failed++
		case res.row.Rating != nil:
			stats.Rated++
		}
	}
	if err := r.store.BatchUpsertRatings(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store ratings: %w", err)
	}

	if r.logger != nil {
		r.logger.Info("ratings refreshed",
			zap.Int("requested", stats.Requested),
			zap.Int("stale", stats.Stale),
			zap.Int("rated", stats.Rated),
			zap.Int("failed", stats.Failed),
			zap.Int("retries", stats.Retries),
		)
	}
	return stats, nil
}

// lookup fetches one name, retrying 429 responses with exponential backoff.
// The returned error is non-nil only when ctx is done.
func (r *Refresher) lookup(ctx context.Context, name string) (lookup, error) {
	res := lookup{row: &storage.CachedRating{Name: name}}
	for attempt := 0; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return res, err
		}
		rating, status, err := r.fetcher.Fetch(ctx, name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.row.StatusCode = status
		res.row.LastUpdated = r.now()

		if status == http.StatusTooManyRequests && attempt < r.maxRetries {
			res.retries++
			delay := r.backoffBase << attempt
			if r.logger != nil {
				r.logger.Debug("rate limited, backing off",
					zap.String("name", name),
					zap.Duration("delay", delay),
				)
			}
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		if err != nil || status >= 400 {
			res.failed = true
			if r.logger != nil {
				r.logger.Warn("rating lookup failed",
					zap.String("name", name),
					zap.Int("status", status),
					zap.Error(err),
				)
			}
			return res, nil
		}
		res.row.Rating = rating
		return res, nil
	}
}

// Snapshot returns the current cache contents as an immutable Table.
func (r *Refresher) Snapshot(ctx context.Context) (Table, error) {
	entries, err := r.store.Ratings(ctx)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read ratings: %w", err)
	}
	return NewTable(entries), nil
}

// Publish writes the current snapshot to path and returns it.
func (r *Refresher) Publish(ctx context.Context, path string) (Table, error) {
	t, err := r.Snapshot(ctx)
	if err != nil {
		return Table{}, err
	}
	if err := t.SaveFile(path); err != nil {
		return Table{}, fmt.Errorf("failed to publish ratings: %w", err)
	}
	return t, nil
}
