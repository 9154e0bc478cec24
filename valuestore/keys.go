package valuestore

import (
	"context"
	"sync"

	"github.com/hupe1980/vectier/cache"
)

// MemoryKeyStore is an in-memory KeyStore.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[cache.ID]string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[cache.ID]string)}
}

func (k *MemoryKeyStore) SetKey(_ context.Context, id cache.ID, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[id] = key
	return nil
}

func (k *MemoryKeyStore) BulkGetKeys(_ context.Context, ids []cache.ID) ([]string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = k.keys[id]
	}
	return out, nil
}

func (k *MemoryKeyStore) ClearKeys(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.keys)
	return nil
}
