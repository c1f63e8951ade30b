package reembed

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/ai/mock"
	"github.com/poiesic/docingest/ai/openai"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/vectorstore"
	"github.com/poiesic/docingest/vectorstore/flat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntegration_ModelUpgrade ingests with one model, re-embeds with another
// and checks the index survives a reopen with the new vectors.
func TestIntegration_ModelUpgrade(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	dir := t.TempDir()

	store, err := flat.Open(dir)
	require.NoError(t, err)

	oldModel := mock.NewMockEmbedder().WithDimension(16)
	upserter, err := vectorstore.NewUpserter(oldModel, store, vectorstore.WithBatchSize(5))
	require.NoError(t, err)

	chunks := make([]core.Chunk, 20)
	for i := range chunks {
		chunks[i] = core.Chunk{Content: makeDocs(20)[i].Content, Metadata: core.Metadata{}}
	}
	ids, err := upserter.Upsert(ctx, "docs", chunks)
	require.NoError(t, err)

	newModel := mock.NewMockEmbedder().WithDimension(6)
	config := DefaultConfig()
	config.Normalize = true
	r, err := NewReembedder(store, newModel, config, nil, nil)
	require.NoError(t, err)
	_, err = r.Run(ctx, "docs")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := flat.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	upgraded, err := vectorstore.NewUpserter(newModel, reopened, vectorstore.WithNormalization(true))
	require.NoError(t, err)
	hits, err := upgraded.Query(ctx, "docs", chunks[7].Content, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, ids[7], hits[0].ChunkID)
	assert.InDelta(t, 0, hits[0].Score, 1e-5)
}

// TestIntegration_IdempotentReembedding runs the same model twice.
func TestIntegration_IdempotentReembedding(t *testing.T) {
	store := seedStore(t, 5)
	ctx := context.Background()
	embedder := mock.NewMockEmbedder().WithDimension(8)

	for range 2 {
		r, err := NewReembedder(store, embedder, testConfig(), nil, nil)
		require.NoError(t, err)
		_, err = r.Run(ctx, "docs")
		require.NoError(t, err)
	}

	docs, err := store.Documents(ctx, "docs")
	require.NoError(t, err)
	for _, doc := range docs {
		assert.Equal(t, mock.DeterministicVector(doc.Content, 8), doc.Vector)
	}
}

// TestIntegration_WithRealEmbedder re-embeds with a live OpenAI-compatible
// server. Set DOCINGEST_EMBEDDING_HOST to enable.
func TestIntegration_WithRealEmbedder(t *testing.T) {
	host := os.Getenv("DOCINGEST_EMBEDDING_HOST")
	if host == "" {
		t.Skip("DOCINGEST_EMBEDDING_HOST not set")
	}
	ctx := context.Background()
	store := seedStore(t, 3)

	embedder, err := openai.NewEmbedder(ai.NewConfig(ai.WithEmbeddingHost(host)))
	require.NoError(t, err)

	var buf bytes.Buffer
	r, err := NewReembedder(store, embedder, DefaultConfig(), &buf, nil)
	require.NoError(t, err)
	stats, err := r.Run(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents)
	assert.Greater(t, stats.Dimension, 0)
}
