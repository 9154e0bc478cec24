package vectier

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/internal/hnsw"
	"github.com/hupe1980/vectier/optimizer"
	"github.com/hupe1980/vectier/valuestore"
)

var (
	// ErrNotFound is returned when an item is not found in any tier.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyVector is returned for zero-length vectors and queries.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrDuplicateID is returned when an id is linked into the graph twice.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("engine closed")

	// ErrStoreUnavailable is returned when the persistent store fails.
	ErrStoreUnavailable = valuestore.ErrUnavailable

	// ErrBusy is returned when an optimization is already running.
	ErrBusy = optimizer.ErrBusy

	// ErrInternalConsistency is returned when a cache detects a broken
	// invariant. Clear the cache to recover.
	ErrInternalConsistency = cache.ErrInternalConsistency
)

// ErrDimensionMismatch indicates a vector dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, valuestore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Argument normalization.
	if errors.Is(err, hnsw.ErrEmptyVector) {
		return fmt.Errorf("%w: %w", ErrEmptyVector, err)
	}
	if errors.Is(err, hnsw.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	var dup *hnsw.ErrDuplicateID
	if errors.As(err, &dup) {
		return fmt.Errorf("%w: %w", ErrDuplicateID, err)
	}

	return err
}
