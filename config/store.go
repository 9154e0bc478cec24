package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/blobstore"
	"github.com/hupe1980/vectier/blobstore/minio"
	s3store "github.com/hupe1980/vectier/blobstore/s3"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/valuestore"
)

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// OpenStore connects the configured persistent store. keys is non-nil when
// the backend also keeps external keys.
func (c Config) OpenStore(ctx context.Context, rc *resource.Controller) (valuestore.Store, valuestore.KeyStore, error) {
	compression, err := valuestore.ParseCompression(c.Compression)
	if err != nil {
		return nil, nil, err
	}
	codec := valuestore.Codec{Compression: compression}

	store, err := c.openStore(ctx, codec, rc)
	if err != nil {
		return nil, nil, fmt.Errorf("config: open %s store: %w", c.Store.Type, err)
	}
	keys, _ := store.(valuestore.KeyStore)
	if c.Store.LatencyMillis > 0 {
		d := time.Duration(c.Store.LatencyMillis * float64(time.Millisecond))
		return valuestore.WithLatency(store, d), keys, nil
	}
	return store, keys, nil
}

func (c Config) openStore(ctx context.Context, codec valuestore.Codec, rc *resource.Controller) (valuestore.Store, error) {
	s := c.Store
	blobs := func(b blobstore.BlobStore) (valuestore.Store, error) {
		return valuestore.OpenBlobStore(ctx, b,
			valuestore.WithCodec(codec),
			valuestore.WithResourceController(rc),
		)
	}

	switch s.Type {
	case StoreMemory:
		return valuestore.NewMemoryStore(), nil
	case StoreSQLite:
		return valuestore.OpenSQLite(ctx, s.Path, codec)
	case StoreLocal:
		b, err := blobstore.NewLocalStore(s.Path)
		if err != nil {
			return nil, err
		}
		return blobs(b)
	case StoreS3:
		if s.Endpoint == "" {
			b, err := s3store.New(ctx, s.Bucket, s3store.WithPrefix(s.Prefix), s3store.WithRegion(s.Region))
			if err != nil {
				return nil, err
			}
			return blobs(b)
		}
		cfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.Endpoint)
			o.UsePathStyle = true
		})
		return blobs(s3store.NewStore(client, s.Bucket, s.Prefix))
	case StoreMinIO:
		b, err := minio.Dial(ctx, minio.Config{
			Endpoint:  s.Endpoint,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Secure:    s.Secure,
			Region:    s.Region,
			Bucket:    s.Bucket,
			Prefix:    s.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return blobs(b)
	case StoreDynamoDB:
		cfg, err := c.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if s.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.Endpoint)
			}
		})
		ds := valuestore.NewDynamoStore(client, s.Table, codec)
		if err := ds.Load(ctx); err != nil {
			return nil, err
		}
		return ds, nil
	}
	return nil, fmt.Errorf("unknown store type %q", s.Type)
}

func (c Config) awsConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Store.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Store.Region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// NewEngine opens the store and builds an engine from c. logger may be nil.
func (c Config) NewEngine(ctx context.Context, logger *vectier.Logger, extra ...vectier.Option) (*vectier.Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rc := c.Controller()
	store, keys, err := c.OpenStore(ctx, rc)
	if err != nil {
		return nil, err
	}

	opts := append(c.EngineOptions(), vectier.WithController(rc), vectier.WithLogger(logger))
	if keys != nil {
		opts = append(opts, vectier.WithKeyStore(keys))
	}
	e, err := vectier.New(store, append(opts, extra...)...)
	if err != nil {
		_ = closeStore(ctx, store)
		return nil, err
	}
	return e, nil
}

func closeStore(ctx context.Context, s valuestore.Store) error {
	switch c := s.(type) {
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close(context.Context) error }:
		return c.Close(ctx)
	}
	return nil
}
