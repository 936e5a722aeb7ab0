// Package storage persists instructor rating lookups and writes dataset files.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/coursegraph/internal/models"
)

// CachedRating is one row of the rating cache. Rating is nil when the last lookup
// found nothing (or failed) and no earlier lookup succeeded.
type CachedRating struct {
	Name        string
	Rating      *models.InstructorRating
	StatusCode  int
	LastUpdated time.Time
}

// RatingStore caches instructor rating lookups between refresh runs.
type RatingStore interface {
	GetRating(ctx context.Context, name string) (*CachedRating, error)
	// UpsertRating records a lookup. A nil Rating never erases a known one.
	UpsertRating(ctx context.Context, r *CachedRating) error
	BatchUpsertRatings(ctx context.Context, rs []*CachedRating) error

	// StaleNames returns the names from names that were never looked up or whose
	// last lookup is older than maxAge at now, in input order.
	StaleNames(ctx context.Context, names []string, maxAge time.Duration, now time.Time) ([]string, error)
	// Ratings returns every cached name with a known rating.
	Ratings(ctx context.Context) (map[string]models.InstructorRating, error)

	CountRatings(ctx context.Context) (int64, error)

	Close() error
}
