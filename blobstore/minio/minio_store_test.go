package minio

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/vectier/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_Integration requires a running MinIO. Set MINIO_ENDPOINT to run it.
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	ctx := context.Background()
	store, err := Dial(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "test-vectier",
		Prefix:    "it/",
	})
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "v/1", []byte("hello minio")))

	data, err := blobstore.ReadAll(ctx, store, "v/1")
	require.NoError(t, err)
	assert.Equal(t, "hello minio", string(data))

	names, err := store.List(ctx, "v/")
	require.NoError(t, err)
	assert.Contains(t, names, "v/1")

	require.NoError(t, store.Delete(ctx, "v/1"))
	_, err = store.Open(ctx, "v/1")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Key(t *testing.T) {
	s := NewStore(nil, "b", "root/")
	assert.Equal(t, "root/v/1", s.key("v/1"))
	assert.Equal(t, "v/1", NewStore(nil, "b", "").key("v/1"))
}
