package valuestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vectier/cache"
)

var (
	// ErrNotFound reports an id the store has never seen.
	ErrNotFound = errors.New("valuestore: not found")
	// ErrUnavailable wraps every backend failure.
	ErrUnavailable = errors.New("valuestore: unavailable")
)

// Result is one entry of a BulkGet. Vector is nil when Found is false.
type Result struct {
	ID     cache.ID
	Vector []float32
	Found  bool
}

// Store is the persistent id -> vector map.
type Store interface {
	// Get returns ErrNotFound when id is absent.
	Get(ctx context.Context, id cache.ID) ([]float32, error)
	// BulkGet returns one Result per id, in the order of ids.
	BulkGet(ctx context.Context, ids []cache.ID) ([]Result, error)
	Set(ctx context.Context, id cache.ID, v []float32) error
	Clear(ctx context.Context) error
	// RandomID returns an arbitrary stored id; ok is false when empty.
	RandomID(ctx context.Context) (id cache.ID, ok bool, err error)
}

// KeyStore maps ids to the caller's external keys.
type KeyStore interface {
	SetKey(ctx context.Context, id cache.ID, key string) error
	// BulkGetKeys returns one key per id; missing ids map to "".
	BulkGetKeys(ctx context.Context, ids []cache.ID) ([]string, error)
	ClearKeys(ctx context.Context) error
}

// IndexStore persists the serialized graph topology next to the vectors so
// an engine can resume without rebuilding it.
type IndexStore interface {
	SaveIndex(ctx context.Context, data []byte) error
	// LoadIndex returns ok false when no index was saved.
	LoadIndex(ctx context.Context) (data []byte, ok bool, err error)
}

// unavailable wraps a backend error so errors.Is matches ErrUnavailable while
// the cause stays reachable.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// bulkFromGet implements BulkGet on top of Get for stores without a batch
// primitive.
func bulkFromGet(ctx context.Context, s Store, ids []cache.ID) ([]Result, error) {
	out := make([]Result, len(ids))
	for i, id := range ids {
		v, err := s.Get(ctx, id)
		switch {
		case err == nil:
			out[i] = Result{ID: id, Vector: v, Found: true}
		case errors.Is(err, ErrNotFound):
			out[i] = Result{ID: id}
		default:
			return nil, err
		}
	}
	return out, nil
}
