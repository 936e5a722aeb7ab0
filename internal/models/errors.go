package models

import "errors"

// Client-facing query conditions. Transports map these to 4xx responses.
var (
	// ErrUnknownTerm is returned when no index has been built for the requested term.
	ErrUnknownTerm = errors.New("unknown term")
	// ErrUnknownMajor is returned when the term has no prerequisite graph for the major.
	ErrUnknownMajor = errors.New("unknown major")
)

// ErrEmptyDataset is returned by index builds over a dataset with no records.
var ErrEmptyDataset = errors.New("dataset is empty")

// ErrInvalidQuery wraps request validation failures.
var ErrInvalidQuery = errors.New("invalid query")
