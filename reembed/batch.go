package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/vectorstore"
)

// BatchProcessor replaces the vectors of a batch of documents.
type BatchProcessor struct {
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
	normalize      bool
	logger         *slog.Logger

	// dim is the dimension of the first batch; later batches must match.
	dim int
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration, normalize bool, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		normalize:      normalize,
		logger:         logger,
	}
}

// Process embeds the batch's contents and stores the vectors on the
// documents in place.
func (bp *BatchProcessor) Process(ctx context.Context, docs []vectorstore.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	var (
		vectors [][]float32
		dim     int
	)
	err := retry(ctx, bp.logger, func(ctx context.Context) error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		// A well-formed but wrong answer will not improve on retry
		if len(vectors) != len(docs) {
			return Permanent(fmt.Errorf("embedding count mismatch: expected %d, got %d", len(docs), len(vectors)))
		}
		dim, err = vectorstore.CheckDimensions(vectors)
		return Permanent(err)
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to embed batch of %d: %w", len(docs), err)
	}
	if bp.dim == 0 {
		bp.dim = dim
	} else if dim != bp.dim {
		return fmt.Errorf("%w: batch has %d dimensions, earlier batches %d",
			vectorstore.ErrDimensionMismatch, dim, bp.dim)
	}

	for i := range docs {
		if bp.normalize {
			docs[i].Vector = vectorstore.NormalizeVector(vectors[i])
		} else {
			docs[i].Vector = vectors[i]
		}
	}
	return nil
}

// Dimension returns the vector dimension seen so far, or 0.
func (bp *BatchProcessor) Dimension() int {
	return bp.dim
}
