package vectorstore

import "errors"

var (
	// ErrEmbedOrStore wraps any failure to embed chunks or persist them.
	ErrEmbedOrStore = errors.New("embed or store failed")

	// ErrDimensionMismatch is returned when vectors disagree in length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidTopK is returned for a non-positive result count.
	ErrInvalidTopK = errors.New("top k must be positive")

	// ErrCollectionChanged is returned by a conditional replace when the
	// collection was written after it was read.
	ErrCollectionChanged = errors.New("collection changed since read")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("vector store is closed")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("vector store required")
)
