// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.



package docingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/chunk"
	"github.com/poiesic/docingest/ingestion"
	"github.com/poiesic/docingest/reembed"
	"github.com/poiesic/docingest/search"
	"github.com/poiesic/docingest/storage/sqldb"
	"github.com/poiesic/docingest/vectorstore/milvus"
	"gopkg.in/yaml.v3"
)

// Record store drivers. The SQL drivers are handled by storage/sqldb.
const (
	RecordStoreBadger   = "badger"
	RecordStoreSQLite   = sqldb.DriverSQLite
	RecordStoreMySQL    = sqldb.DriverMySQL
	RecordStorePostgres = sqldb.DriverPostgres
)

// Vector store backends.
const (
	VectorStoreFlat   = "flat"
	VectorStoreMilvus = "milvus"
)

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// RecordStoreConfig selects where pipeline records are kept.
type RecordStoreConfig struct {
	// Driver is one of badger, sqlite, mysql or postgres.
	Driver string `yaml:"driver"`

	// DSN is the connection string for SQL drivers. For badger it is the
	// database directory and defaults to <data_dir>/records.
	DSN string `yaml:"dsn"`
}

// VectorStoreConfig selects the vector index backend.
type VectorStoreConfig struct {
	// Backend is flat or milvus.
	Backend string `yaml:"backend"`

	// Dir holds the flat index files. Defaults to <data_dir>/index.
	Dir string `yaml:"dir"`

	Milvus milvus.Config `yaml:"milvus"`
}

// SearchConfig tunes query re-ranking.
type SearchConfig struct {
	CandidateFactor int     `yaml:"candidate_factor"`
	MaxDistance     float32 `yaml:"max_distance"`
}

// Config aggregates the settings of every component an Engine wires.
type Config struct {
	DataDir string `yaml:"data_dir"`

	RecordStore RecordStoreConfig `yaml:"record_store"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunk       chunk.Config      `yaml:"chunk"`

	// Workers is the number of files processed at once.
	Workers int `yaml:"workers"`

	// QueueCapacity bounds accepted-but-not-running jobs. Zero means unbounded.
	QueueCapacity int `yaml:"queue_capacity"`

	// JobTimeout bounds one job end to end. Zero disables it.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// NormalizeVectors scales embeddings to unit length before storing and querying.
	NormalizeVectors bool `yaml:"normalize"`

	AI      *ai.Config      `yaml:"ai"`
	Reembed *reembed.Config `yaml:"reembed"`
	Search  SearchConfig    `yaml:"search"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithDataDir sets the directory holding local stores.
func WithDataDir(dir string) ConfigOption {
	return func(c *Config) {
		c.DataDir = dir
	}
}

// WithRecordStore selects the record store driver and DSN.
func WithRecordStore(driver, dsn string) ConfigOption {
	return func(c *Config) {
		c.RecordStore = RecordStoreConfig{Driver: driver, DSN: dsn}
	}
}

// WithVectorStore selects the vector store backend.
func WithVectorStore(backend string) ConfigOption {
	return func(c *Config) {
		c.VectorStore.Backend = backend
	}
}

// WithWorkers sets the ingestion worker count.
func WithWorkers(workers int) ConfigOption {
	return func(c *Config) {
		c.Workers = workers
	}
}

// WithAIConfig replaces the AI service settings.
func WithAIConfig(config *ai.Config) ConfigOption {
	return func(c *Config) {
		c.AI = config
	}
}

// DefaultConfig returns a Config for a single machine: badger records and
// flat index files under ./data, two workers, local embedding server.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "data",
		RecordStore: RecordStoreConfig{Driver: RecordStoreBadger},
		VectorStore: VectorStoreConfig{
			Backend: VectorStoreFlat,
			Milvus:  milvus.DefaultConfig(),
		},
		Chunk:   chunk.DefaultConfig(),
		Workers: ingestion.DefaultPoolSize,
		AI:      ai.DefaultConfig(),
		Reembed: reembed.DefaultConfig(),
		Search:  SearchConfig{CandidateFactor: search.DefaultCandidateFactor},
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// LoadConfig reads a YAML file on top of DefaultConfig. Keys missing from
// the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize fills zero values with defaults and derives local store paths
// from DataDir.
func (c *Config) Normalize() {
	c.RecordStore.Driver = strings.ToLower(strings.TrimSpace(c.RecordStore.Driver))
	if c.RecordStore.Driver == "" {
		c.RecordStore.Driver = RecordStoreBadger
	}
	if c.RecordStore.Driver == RecordStoreBadger && c.RecordStore.DSN == "" && c.DataDir != "" {
		c.RecordStore.DSN = filepath.Join(c.DataDir, "records")
	}

	c.VectorStore.Backend = strings.ToLower(strings.TrimSpace(c.VectorStore.Backend))
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = VectorStoreFlat
	}
	if c.VectorStore.Dir == "" && c.DataDir != "" {
		c.VectorStore.Dir = filepath.Join(c.DataDir, "index")
	}

	if c.Chunk.Size == 0 {
		c.Chunk = chunk.DefaultConfig()
	}
	if c.Workers == 0 {
		c.Workers = ingestion.DefaultPoolSize
	}
	if c.AI == nil {
		c.AI = ai.DefaultConfig()
	}
	c.AI.Normalize()
	if c.Reembed == nil {
		c.Reembed = reembed.DefaultConfig()
	}
	if c.Search.CandidateFactor == 0 {
		c.Search.CandidateFactor = search.DefaultCandidateFactor
	}
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.RecordStore.Driver {
	case RecordStoreBadger:
		if c.RecordStore.DSN == "" {
			return fmt.Errorf("%w: badger record store needs data_dir or dsn", ErrInvalidConfig)
		}
	case RecordStoreSQLite, RecordStoreMySQL, RecordStorePostgres:
		if c.RecordStore.DSN == "" {
			return fmt.Errorf("%w: %s record store needs a dsn", ErrInvalidConfig, c.RecordStore.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown record store driver %q", ErrInvalidConfig, c.RecordStore.Driver)
	}

	switch c.VectorStore.Backend {
	case VectorStoreFlat:
		if c.VectorStore.Dir == "" {
			return fmt.Errorf("%w: flat vector store needs data_dir or dir", ErrInvalidConfig)
		}
	case VectorStoreMilvus:
		if c.VectorStore.Milvus.Address == "" {
			return fmt.Errorf("%w: milvus vector store needs an address", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector store backend %q", ErrInvalidConfig, c.VectorStore.Backend)
	}

	if err := c.Chunk.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("%w: queue_capacity must not be negative", ErrInvalidConfig)
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("%w: job_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Search.CandidateFactor < 1 {
		return fmt.Errorf("%w: search candidate_factor must be positive", ErrInvalidConfig)
	}
	if c.Search.MaxDistance < 0 {
		return fmt.Errorf("%w: search max_distance must not be negative", ErrInvalidConfig)
	}
	if c.Reembed.BatchSize < 1 || c.Reembed.MaxRetries < 1 {
		return fmt.Errorf("%w: reembed batch_size and max_retries must be positive", ErrInvalidConfig)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
