package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/core"
)

// DefaultBatchSize is the number of chunks sent to the embedder per call.
const DefaultBatchSize = 64

// Upserter embeds chunks in batches and adds them to a Store in one write.
// It holds no per-call state and is safe for concurrent use.
type Upserter struct {
	embedder  ai.Embedder
	store     Store
	batchSize int
	normalize bool
	logger    *slog.Logger
}

// UpserterOption configures an Upserter.
type UpserterOption func(*Upserter) error

// WithBatchSize sets how many chunks are embedded per call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) UpserterOption {
	return func(u *Upserter) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		u.batchSize = size
		return nil
	}
}

// WithNormalization scales every vector to unit length before storing and
// searching, so L2 ranking matches cosine ranking.
func WithNormalization(enabled bool) UpserterOption {
	return func(u *Upserter) error {
		u.normalize = enabled
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) UpserterOption {
	return func(u *Upserter) error {
		if logger == nil {
			logger = slog.Default()
		}
		u.logger = logger
		return nil
	}
}

// NewUpserter creates an upserter writing to store.
func NewUpserter(embedder ai.Embedder, store Store, opts ...UpserterOption) (*Upserter, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	u := &Upserter{
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}
	u.logger = u.logger.With("component", "upserter")
	return u, nil
}

// Upsert embeds chunks and adds them to collection, returning the stored
// identifiers in chunk order. Nothing is written until every batch has been
// embedded, and the write is a single Add, so a failed upsert leaves the
// collection unchanged. Every failure wraps ErrEmbedOrStore.
func (u *Upserter) Upsert(ctx context.Context, collection string, chunks []core.Chunk) ([]string, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += u.batchSize {
		end := min(start+u.batchSize, len(chunks))

		batch, err := u.embedBatch(ctx, chunks[start:end])
		if err != nil {
			u.logger.Error("batch failed",
				"collection", collection,
				"batch_start", start,
				"batch_size", end-start,
				"err", err)
			return nil, fmt.Errorf("%w: %w", ErrEmbedOrStore, err)
		}
		vectors = append(vectors, batch...)
	}
	if _, err := CheckDimensions(vectors); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedOrStore, err)
	}

	entries := make([]Entry, len(chunks))
	for i, chunk := range chunks {
		vector := vectors[i]
		if u.normalize {
			vector = NormalizeVector(vector)
		}
		entries[i] = Entry{
			Content:  chunk.Content,
			Metadata: chunk.Metadata.Clone(),
			Vector:   vector,
		}
	}

	ids, err := u.store.Add(ctx, collection, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: storing %d chunks: %w", ErrEmbedOrStore, len(entries), err)
	}
	if len(ids) != len(entries) {
		return nil, fmt.Errorf("%w: store returned %d ids for %d chunks", ErrEmbedOrStore, len(ids), len(entries))
	}

	u.logger.Debug("upserted chunks", "collection", collection, "count", len(ids))
	return ids, nil
}

func (u *Upserter) embedBatch(ctx context.Context, batch []core.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	vectors, err := u.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}
	return vectors, nil
}

// Query embeds text and returns the k nearest stored chunks of collection.
func (u *Upserter) Query(ctx context.Context, collection, text string, k int) ([]core.SearchHit, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidTopK
	}
	if strings.TrimSpace(text) == "" {
		return []core.SearchHit{}, nil
	}

	vector, err := u.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if u.normalize {
		vector = NormalizeVector(vector)
	}
	return u.store.Search(ctx, collection, vector, k)
}
