// Package milvus implements vectorstore.Store against a Milvus server.
// Each docingest collection maps to one Milvus collection, created with an
// IVF_FLAT L2 index the first time it is written.
package milvus

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/vectorstore"
)

// Field names of every collection.
const (
	fieldID        = "chunk_id"
	fieldVector    = "embedding"
	fieldContent   = "content"
	fieldMetadata  = "metadata"
	maxIDLen       = 64
	maxContentLen  = 65535
	maxMetadataLen = 8192
)

var (
	// ErrAddressRequired is returned when no server address is configured.
	ErrAddressRequired = errors.New("milvus address required")

	// ErrFieldTooLong is returned when content or metadata exceeds the
	// collection's VarChar limits.
	ErrFieldTooLong = errors.New("field exceeds milvus length limit")
)

// Config holds connection settings.
type Config struct {
	Address  string        `yaml:"address"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Database string        `yaml:"database"`
	Timeout  time.Duration `yaml:"timeout"`
	NList    int           `yaml:"nlist"`
	NProbe   int           `yaml:"nprobe"`
}

// DefaultConfig returns settings for a local standalone server.
func DefaultConfig() Config {
	return Config{
		Address: "localhost:19530",
		Timeout: 10 * time.Second,
		NList:   128,
		NProbe:  16,
	}
}

// Store implements vectorstore.Store.
type Store struct {
	client *milvusclient.Client
	config Config
	logger *slog.Logger

	mu    sync.Mutex
	ready map[string]struct{}
}

var _ vectorstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// Open connects to the server described by config.
func Open(ctx context.Context, config Config, opts ...Option) (*Store, error) {
	config = normalize(config)
	if config.Address == "" {
		return nil, ErrAddressRequired
	}

	s := &Store{
		config: config,
		logger: slog.Default(),
		ready:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "milvus-store", "address", config.Address)

	connectCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	client, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  config.Address,
		Username: config.Username,
		Password: config.Password,
		DBName:   config.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	s.client = client
	return s, nil
}

func normalize(config Config) Config {
	defaults := DefaultConfig()
	config.Address = strings.TrimSpace(config.Address)
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.NList <= 0 {
		config.NList = defaults.NList
	}
	if config.NProbe <= 0 {
		config.NProbe = defaults.NProbe
	}
	return config
}

// Close disconnects from the server.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()
	return s.client.Close(ctx)
}

// Add inserts entries and flushes so they are searchable on return.
func (s *Store) Add(ctx context.Context, collection string, entries []vectorstore.Entry) ([]string, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []string{}, nil
	}

	vectors := make([][]float32, len(entries))
	for i := range entries {
		vectors[i] = entries[i].Vector
	}
	dim, err := vectorstore.CheckDimensions(vectors)
	if err != nil {
		return nil, err
	}

	name := collectionName(collection)
	if err := s.ensureCollection(ctx, name, dim); err != nil {
		return nil, err
	}

	ids := make([]string, len(entries))
	contents := make([]string, len(entries))
	metadata := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = uuid.NewString()
		if len(entry.Content) > maxContentLen {
			return nil, fmt.Errorf("%w: content of entry %d is %d bytes", ErrFieldTooLong, i, len(entry.Content))
		}
		contents[i] = entry.Content
		metadata[i], err = encodeMetadata(entry.Metadata)
		if err != nil {
			return nil, err
		}
	}

	_, err = s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(name,
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldVector, dim, vectors),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnVarChar(fieldMetadata, metadata),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", name, err)
	}

	if err := s.flush(ctx, name); err != nil {
		s.rollback(ctx, name, ids)
		return nil, err
	}

	s.logger.Debug("inserted entries", "collection", name, "count", len(entries))
	return ids, nil
}

func (s *Store) flush(ctx context.Context, name string) error {
	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush of %s: %w", name, err)
	}
	return nil
}

// rollback deletes rows inserted by an Add that did not complete. It runs
// detached from ctx, which may already be canceled.
func (s *Store) rollback(ctx context.Context, name string, ids []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Timeout)
	defer cancel()

	_, err := s.client.Delete(ctx, milvusclient.NewDeleteOption(name).WithStringIDs(fieldID, ids))
	if err != nil {
		s.logger.Error("failed to roll back insert", "collection", name, "count", len(ids), "err", err)
		return
	}
	s.logger.Warn("rolled back insert", "collection", name, "count", len(ids))
}

// Search returns the k nearest entries. Scores are L2 distances.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int) ([]core.SearchHit, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, vectorstore.ErrInvalidTopK
	}

	name := collectionName(collection)
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return []core.SearchHit{}, nil
	}
	if err := s.load(ctx, name); err != nil {
		return nil, err
	}

	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		k,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldVector).
		WithSearchParam("nprobe", fmt.Sprint(s.config.NProbe)).
		WithOutputFields(fieldID, fieldContent, fieldMetadata))
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", name, err)
	}
	if len(results) == 0 {
		return []core.SearchHit{}, nil
	}

	fields := make([]column.Column, 0, len(results[0].Fields))
	for _, field := range results[0].Fields {
		fields = append(fields, field)
	}
	return hitsFromColumns(results[0].ResultCount, results[0].Scores, fields), nil
}

// ensureCollection creates name with a dim-wide vector field if it does
// not exist, then indexes and loads it.
func (s *Store) ensureCollection(ctx context.Context, name string, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ready[name]; ok {
		return nil
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("docingest chunks").
			WithAutoID(false).
			WithField(entity.NewField().
				WithName(fieldID).
				WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).
				WithMaxLength(maxIDLen)).
			WithField(entity.NewField().
				WithName(fieldVector).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(dim))).
			WithField(entity.NewField().
				WithName(fieldContent).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(maxContentLen)).
			WithField(entity.NewField().
				WithName(fieldMetadata).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(maxMetadataLen))

		if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}

		idx := index.NewIvfFlatIndex(entity.L2, s.config.NList)
		indexTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, fieldVector, idx))
		if err != nil {
			return fmt.Errorf("failed to create index on %s: %w", name, err)
		}
		if err := indexTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index on %s: %w", name, err)
		}
		s.logger.Info("created collection", "collection", name, "dim", dim)
	}

	if err := s.load(ctx, name); err != nil {
		return err
	}
	s.ready[name] = struct{}{}
	return nil
}

func (s *Store) load(ctx context.Context, name string) error {
	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for load of %s: %w", name, err)
	}
	return nil
}

// hitsFromColumns turns one query's result columns into hits.
func hitsFromColumns(count int, scores []float32, fields []column.Column) []core.SearchHit {
	hits := make([]core.SearchHit, count)
	for i := range hits {
		if i < len(scores) {
			hits[i].Score = scores[i]
		}
		hits[i].Metadata = core.Metadata{}
	}

	for _, field := range fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok {
			continue
		}
		data := col.Data()
		for i := 0; i < count && i < len(data); i++ {
			switch col.Name() {
			case fieldID:
				hits[i].ChunkID = data[i]
			case fieldContent:
				hits[i].Content = data[i]
			case fieldMetadata:
				hits[i].Metadata = decodeMetadata(data[i])
			}
		}
	}
	return hits
}

// collectionName maps a collection to a valid Milvus name: letters, digits
// and underscores, not starting with a digit. Names that needed rewriting
// get a hash suffix so distinct collections never share a Milvus collection.
func collectionName(collection string) string {
	var sb strings.Builder
	clean := true
	for i, r := range collection {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				sb.WriteByte('_')
				clean = false
			}
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
			clean = false
		}
	}
	if clean {
		return sb.String()
	}
	sum := blake2b.Sum256([]byte(collection))
	return sb.String() + "_" + hex.EncodeToString(sum[:4])
}

func encodeMetadata(m core.Metadata) (string, error) {
	if m == nil {
		m = core.Metadata{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	if len(data) > maxMetadataLen {
		return "", fmt.Errorf("%w: metadata is %d bytes", ErrFieldTooLong, len(data))
	}
	return string(data), nil
}

func decodeMetadata(s string) core.Metadata {
	m := core.Metadata{}
	if s == "" {
		return m
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return core.Metadata{}
	}
	return m
}
