package valuestore

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vectier/cache"
)

// MemoryStore keeps vectors, and optionally a saved graph, in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[cache.ID][]float32
	ids   *roaring.Bitmap
	index []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[cache.ID][]float32), ids: roaring.New()}
}

func (s *MemoryStore) Get(_ context.Context, id cache.ID) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) BulkGet(_ context.Context, ids []cache.ID) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Result, len(ids))
	for i, id := range ids {
		v, ok := s.data[id]
		out[i] = Result{ID: id, Vector: v, Found: ok}
	}
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, id cache.ID, v []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = slices.Clone(v)
	s.ids.Add(id)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.data)
	s.ids.Clear()
	s.index = nil
	return nil
}

func (s *MemoryStore) SaveIndex(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = slices.Clone(data)
	return nil
}

func (s *MemoryStore) LoadIndex(context.Context) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, false, nil
	}
	return slices.Clone(s.index), true, nil
}

func (s *MemoryStore) RandomID(context.Context) (cache.ID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return randomFrom(s.ids)
}

// Len returns the number of stored vectors.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// randomFrom picks a uniformly random member of ids.
func randomFrom(ids *roaring.Bitmap) (cache.ID, bool, error) {
	n := ids.GetCardinality()
	if n == 0 {
		return 0, false, nil
	}
	id, err := ids.Select(uint32(rand.Uint64N(n)))
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
