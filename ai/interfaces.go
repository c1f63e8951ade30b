package ai

import (
	"context"
	"errors"
)

// ErrRecognizerUnavailable is returned by providers that were configured
// without an OCR endpoint.
var ErrRecognizerUnavailable = errors.New("text recognizer not configured")

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// TextRecognizer reads text out of images.
// Implementations must be thread-safe for concurrent use.
type TextRecognizer interface {
	// RecognizeText returns the text blocks found in the image at path,
	// in reading order. An image with no text yields an empty slice.
	RecognizeText(ctx context.Context, path string) ([]string, error)
}

// AIProvider aggregates the AI services used during ingestion.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// TextRecognizer returns the OCR service, or nil when none is configured.
	TextRecognizer() TextRecognizer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
