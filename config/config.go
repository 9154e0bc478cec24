// Package config loads engine and store settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/hupe1980/vectier"
	"github.com/hupe1980/vectier/cache"
	"github.com/hupe1980/vectier/distance"
	"github.com/hupe1980/vectier/internal/resource"
	"github.com/hupe1980/vectier/valuestore"
	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that also accepts strings like "64MiB" or "1.5GB".
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(n *yaml.Node) error {
	var i int64
	if err := n.Decode(&i); err == nil {
		*b = ByteSize(i)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("config: byte size %q: %w", s, err)
	}
	*b = ByteSize(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler. Sizes are written as plain byte
// counts so they round-trip exactly.
func (b ByteSize) MarshalYAML() (any, error) {
	return int64(b), nil
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Store types.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreLocal    = "local"
	StoreS3       = "s3"
	StoreMinIO    = "minio"
	StoreDynamoDB = "dynamodb"
)

// StoreConfig selects and connects the persistent store.
type StoreConfig struct {
	Type string `yaml:"type"`
	// Path is the SQLite file or the local blob directory.
	Path string `yaml:"path,omitempty"`

	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`

	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Secure    bool   `yaml:"secure,omitempty"`

	Table string `yaml:"table,omitempty"`

	// LatencyMillis delays every store read, simulating a slow backend.
	LatencyMillis float64 `yaml:"latency_ms,omitempty"`
}

// ResourceConfig bounds memory, fetch concurrency and store IO.
type ResourceConfig struct {
	MemoryLimit   ByteSize `yaml:"memory_limit,omitempty"`
	FetchWorkers  int      `yaml:"fetch_workers,omitempty"`
	IOBytesPerSec ByteSize `yaml:"io_bytes_per_sec,omitempty"`
}

// Config is the file format of the CLI.
type Config struct {
	Strategy      cache.Strategy `yaml:"strategy"`
	IndexStrategy cache.Strategy `yaml:"index_strategy"`
	FastMemory    ByteSize       `yaml:"fast_memory"`
	IndexMemory   ByteSize       `yaml:"index_memory"`

	TargetFraction float64 `yaml:"target_fraction"`
	TargetMillis   float64 `yaml:"target_millis"`

	M              int    `yaml:"m"`
	EFConstruction int    `yaml:"ef_construction"`
	QueryEF        int    `yaml:"query_ef"`
	Metric         string `yaml:"metric"`
	Lazy           *bool  `yaml:"lazy,omitempty"`
	Seed           uint64 `yaml:"seed,omitempty"`

	Store       StoreConfig    `yaml:"store"`
	Compression string         `yaml:"compression"`
	Resources   ResourceConfig `yaml:"resources,omitempty"`

	// Repeat is the number of query rounds run by the bench command.
	Repeat int `yaml:"repeat"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero fields. Strategies default to FIFO, their zero
// value.
func (c *Config) ApplyDefaults() {
	if c.IndexMemory == 0 {
		c.IndexMemory = vectier.DefaultIndexMemory
	}
	if c.TargetFraction == 0 {
		c.TargetFraction = 0.8
	}
	if c.TargetMillis == 0 {
		c.TargetMillis = 200
	}
	if c.M == 0 {
		c.M = vectier.DefaultM
	}
	if c.EFConstruction == 0 {
		c.EFConstruction = vectier.DefaultEFConstruction
	}
	if c.QueryEF == 0 {
		c.QueryEF = vectier.DefaultQueryEF
	}
	if c.Metric == "" {
		c.Metric = distance.MetricL2.String()
	}
	if c.Lazy == nil {
		lazy := true
		c.Lazy = &lazy
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreMemory
	}
	if c.Compression == "" {
		c.Compression = valuestore.CompressionNone.String()
	}
	if c.Repeat == 0 {
		c.Repeat = 101
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.TargetFraction <= 0 || c.TargetFraction > 1 {
		errs = append(errs, fmt.Errorf("target_fraction must be in (0, 1], got %v", c.TargetFraction))
	}
	if c.TargetMillis <= 0 {
		errs = append(errs, fmt.Errorf("target_millis must be positive, got %v", c.TargetMillis))
	}
	if c.FastMemory < 0 || c.IndexMemory < 0 {
		errs = append(errs, errors.New("memory budgets must not be negative"))
	}
	if c.M < 2 {
		errs = append(errs, fmt.Errorf("m must be at least 2, got %d", c.M))
	}
	if _, err := distance.ParseMetric(c.Metric); err != nil {
		errs = append(errs, err)
	}
	if _, err := valuestore.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, c.Store.validate())
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Type {
	case StoreMemory:
	case StoreSQLite, StoreLocal:
		if s.Path == "" {
			return fmt.Errorf("store %s requires path", s.Type)
		}
	case StoreS3, StoreMinIO:
		if s.Bucket == "" {
			return fmt.Errorf("store %s requires bucket", s.Type)
		}
		if s.Type == StoreMinIO && s.Endpoint == "" {
			return errors.New("store minio requires endpoint")
		}
	case StoreDynamoDB:
		if s.Table == "" {
			return errors.New("store dynamodb requires table")
		}
	default:
		return fmt.Errorf("unknown store type %q", s.Type)
	}
	if s.LatencyMillis < 0 {
		return errors.New("store latency_ms must not be negative")
	}
	return nil
}

// Parse decodes YAML, rejecting unknown fields, and applies defaults.
func Parse(b []byte) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c.ApplyDefaults()
	return c, c.Validate()
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(b)
}

// Marshal renders c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Controller builds the resource controller, or nil when no limit is set.
func (c Config) Controller() *resource.Controller {
	r := c.Resources
	if r.MemoryLimit == 0 && r.FetchWorkers == 0 && r.IOBytesPerSec == 0 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes: int64(r.MemoryLimit),
		FetchWorkers:     int64(r.FetchWorkers),
		IOBytesPerSec:    int64(r.IOBytesPerSec),
	})
}

// EngineOptions translates c into engine options. c must be valid.
func (c Config) EngineOptions() []vectier.Option {
	metric, _ := distance.ParseMetric(c.Metric)
	opts := []vectier.Option{
		vectier.WithStrategy(c.Strategy),
		vectier.WithIndexStrategy(c.IndexStrategy),
		vectier.WithFastMemory(int64(c.FastMemory)),
		vectier.WithIndexMemory(int64(c.IndexMemory)),
		vectier.WithGraph(c.M, c.EFConstruction),
		vectier.WithQueryEF(c.QueryEF),
		vectier.WithMetric(metric),
		vectier.WithSeed(c.Seed),
	}
	if c.Lazy != nil {
		opts = append(opts, vectier.WithLazy(*c.Lazy))
	}
	return opts
}
