// Package vectorstore embeds chunks and writes them to a similarity-search
// index. Index backends live in sub-packages: flat (in-process, persisted
// per collection) and milvus (networked).
package vectorstore

import (
	"context"

	"github.com/poiesic/docingest/core"
)

// Entry is a chunk ready to be stored: its text, metadata and embedding.
type Entry struct {
	Content  string
	Metadata core.Metadata
	Vector   []float32
}

// Document is a stored entry with the identifier the store assigned to it.
type Document struct {
	ID       string
	Content  string
	Metadata core.Metadata
	Vector   []float32
}

// Store is a collection-partitioned vector index.
type Store interface {
	// Add appends entries to collection, creating it if needed, and returns
	// one identifier per entry in order. All entries of a collection share
	// a dimension.
	Add(ctx context.Context, collection string, entries []Entry) ([]string, error)

	// Search returns up to k entries nearest to vector, closest first.
	// A collection that was never written returns no hits.
	Search(ctx context.Context, collection string, vector []float32, k int) ([]core.SearchHit, error)

	Close() error
}

// Rewriter is implemented by stores whose contents can be read back and
// replaced wholesale, which re-embedding requires.
type Rewriter interface {
	// Documents returns every document of collection in insertion order.
	Documents(ctx context.Context, collection string) ([]Document, error)

	// Read is Documents plus the collection's revision, a counter that
	// changes on every write.
	Read(ctx context.Context, collection string) ([]Document, uint64, error)

	// Replace swaps the contents of collection for docs, keeping their IDs,
	// if the collection is still at revision. Otherwise it writes nothing
	// and returns ErrCollectionChanged.
	Replace(ctx context.Context, collection string, docs []Document, revision uint64) error
}
