package valuestore

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/internal/resource"
	"golang.org/x/sync/errgroup"
)

const (
	vectorPrefix = "v/"
	idsBlob      = "meta/ids"
	indexBlob    = "meta/index"
)

// BlobStore keeps one encoded blob per vector. The set of stored ids is kept
// in memory as a roaring bitmap and persisted to meta/ids by Flush.
type BlobStore struct {
	blobs blobstore.BlobStore
	codec Codec
	rc    *resource.Controller

	mu    sync.RWMutex
	ids   *roaring.Bitmap
	dirty bool
}

// BlobOption configures a BlobStore.
type BlobOption func(*BlobStore)

// WithCodec sets the vector codec. The default stores raw vectors.
func WithCodec(c Codec) BlobOption {
	return func(s *BlobStore) { s.codec = c }
}

// WithResourceController bounds BulkGet fan-out and read bandwidth.
func WithResourceController(rc *resource.Controller) BlobOption {
	return func(s *BlobStore) { s.rc = rc }
}

// OpenBlobStore opens a store on blobs, loading the persisted id set if any.
func OpenBlobStore(ctx context.Context, blobs blobstore.BlobStore, opts ...BlobOption) (*BlobStore, error) {
	s := &BlobStore{blobs: blobs, ids: roaring.New()}
	for _, opt := range opts {
		opt(s)
	}

	data, err := blobstore.ReadAll(ctx, blobs, idsBlob)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, unavailable("load ids", err)
	}
	if err := s.ids.UnmarshalBinary(data); err != nil {
		return nil, unavailable("decode ids", err)
	}
	return s, nil
}

func vectorKey(id cache.ID) string {
	return vectorPrefix + strconv.FormatUint(uint64(id), 10)
}

func (s *BlobStore) Get(ctx context.Context, id cache.ID) ([]float32, error) {
	s.mu.RLock()
	known := s.ids.Contains(id)
	s.mu.RUnlock()
	if !known {
		return nil, ErrNotFound
	}

	data, err := blobstore.ReadAll(ctx, s.blobs, vectorKey(id))
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	if err := s.rc.WaitIO(ctx, len(data)); err != nil {
		return nil, err
	}
	v, err := s.codec.Decode(data)
	if err != nil {
		return nil, unavailable("decode", err)
	}
	return v, nil
}

// BulkGet fetches ids in parallel, bounded by the controller's fetch workers.
func (s *BlobStore) BulkGet(ctx context.Context, ids []cache.ID) ([]Result, error) {
	out := make([]Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.rc.FetchWorkers())
	for i, id := range ids {
		g.Go(func() error {
			v, err := s.Get(gctx, id)
			switch {
			case err == nil:
				out[i] = Result{ID: id, Vector: v, Found: true}
			case errors.Is(err, ErrNotFound):
				out[i] = Result{ID: id}
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BlobStore) Set(ctx context.Context, id cache.ID, v []float32) error {
	data, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, vectorKey(id), data); err != nil {
		return unavailable("set", err)
	}
	s.mu.Lock()
	s.ids.Add(id)
	s.dirty = true
	s.mu.Unlock()
	return nil
}

// Clear deletes every vector blob, the persisted id set and the saved graph.
func (s *BlobStore) Clear(ctx context.Context) error {
	names, err := s.blobs.List(ctx, vectorPrefix)
	if err != nil {
		return unavailable("list", err)
	}
	for _, name := range names {
		if err := s.blobs.Delete(ctx, name); err != nil {
			return unavailable("delete", err)
		}
	}
	for _, name := range []string{idsBlob, indexBlob} {
		if err := s.blobs.Delete(ctx, name); err != nil {
			return unavailable("delete", err)
		}
	}
	s.mu.Lock()
	s.ids.Clear()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

func (s *BlobStore) RandomID(context.Context) (cache.ID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return randomFrom(s.ids)
}

// SaveIndex writes data to meta/index.
func (s *BlobStore) SaveIndex(ctx context.Context, data []byte) error {
	return unavailable("save index", s.blobs.Put(ctx, indexBlob, data))
}

func (s *BlobStore) LoadIndex(ctx context.Context) ([]byte, bool, error) {
	data, err := blobstore.ReadAll(ctx, s.blobs, indexBlob)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, unavailable("load index", err)
	}
	return data, true, nil
}

// Flush persists the id set when it changed since the last flush.
func (s *BlobStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.ids.RunOptimize()
	var buf bytes.Buffer
	_, err := s.ids.WriteTo(&buf)
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, idsBlob, buf.Bytes()); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return unavailable("flush", err)
	}
	return nil
}

// Close flushes the id set.
func (s *BlobStore) Close(ctx context.Context) error {
	return s.Flush(ctx)
}
