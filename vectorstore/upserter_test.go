package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/poiesic/docingest/ai/mock"
	"github.com/poiesic/docingest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal Store recording every Add call.
type memStore struct {
	mu      sync.Mutex
	entries map[string][]Entry
	adds    int
	failOn  int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string][]Entry)}
}

func (m *memStore) Add(ctx context.Context, collection string, entries []Entry) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++
	if m.failOn > 0 && m.adds == m.failOn {
		return nil, errors.New("disk full")
	}
	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = fmt.Sprintf("%s-%d", collection, len(m.entries[collection])+i)
	}
	m.entries[collection] = append(m.entries[collection], entries...)
	return ids, nil
}

func (m *memStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]core.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := make([]core.SearchHit, 0)
	for i, e := range m.entries[collection] {
		hits = append(hits, core.SearchHit{
			ChunkID: fmt.Sprintf("%s-%d", collection, i),
			Content: e.Content,
			Score:   SquaredL2(vector, e.Vector),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memStore) Close() error { return nil }

func chunksOf(texts ...string) []core.Chunk {
	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{Content: text, Metadata: core.Metadata{"n": fmt.Sprint(i)}}
	}
	return chunks
}

func TestNewUpserter_RequiresDependencies(t *testing.T) {
	_, err := NewUpserter(nil, newMemStore())
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewUpserter(mock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewUpserter(mock.NewMockEmbedder(), newMemStore(), WithBatchSize(0))
	assert.Error(t, err)
}

func TestUpsert_BatchesInOrder(t *testing.T) {
	store := newMemStore()
	embedder := mock.NewMockEmbedder().WithDimension(8)
	u, err := NewUpserter(embedder, store, WithBatchSize(2))
	require.NoError(t, err)

	ids, err := u.Upsert(context.Background(), "docs", chunksOf("a", "b", "c", "d", "e"))
	require.NoError(t, err)

	assert.Equal(t, []string{"docs-0", "docs-1", "docs-2", "docs-3", "docs-4"}, ids)
	assert.Equal(t, 1, store.adds)
	assert.Equal(t, 3, embedder.CallCount())
	assert.Equal(t, 5, embedder.EmbeddedCount())
	assert.Equal(t, "c", store.entries["docs"][2].Content)
	assert.Equal(t, "2", store.entries["docs"][2].Metadata["n"])
}

func TestUpsert_EmptyAndInvalid(t *testing.T) {
	u, err := NewUpserter(mock.NewMockEmbedder(), newMemStore())
	require.NoError(t, err)

	ids, err := u.Upsert(context.Background(), "docs", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = u.Upsert(context.Background(), " ", chunksOf("a"))
	assert.ErrorIs(t, err, core.ErrEmptyCollection)
}

func TestUpsert_EmbedFailure(t *testing.T) {
	boom := errors.New("model offline")
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	})
	store := newMemStore()
	u, err := NewUpserter(embedder, store)
	require.NoError(t, err)

	_, err = u.Upsert(context.Background(), "docs", chunksOf("a"))
	assert.ErrorIs(t, err, ErrEmbedOrStore)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.adds)
}

func TestUpsert_BadEmbedderOutput(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
	}{
		{"too few vectors", [][]float32{{1, 2}}},
		{"ragged vectors", [][]float32{{1, 2}, {1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
				return tt.vectors, nil
			})
			u, err := NewUpserter(embedder, newMemStore())
			require.NoError(t, err)

			_, err = u.Upsert(context.Background(), "docs", chunksOf("a", "b"))
			assert.ErrorIs(t, err, ErrEmbedOrStore)
		})
	}
}

func TestUpsert_EmbedFailureMidwayWritesNothing(t *testing.T) {
	calls := 0
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("model unavailable")
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, float32(i)}
		}
		return vectors, nil
	})
	store := newMemStore()
	u, err := NewUpserter(embedder, store, WithBatchSize(2))
	require.NoError(t, err)

	ids, err := u.Upsert(context.Background(), "docs", chunksOf("a", "b", "c"))
	assert.ErrorIs(t, err, ErrEmbedOrStore)
	assert.Nil(t, ids)
	assert.Zero(t, store.adds)
	assert.Empty(t, store.entries["docs"])
}

func TestUpsert_DimensionsCheckedAcrossBatches(t *testing.T) {
	calls := 0
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = make([]float32, 2+calls)
		}
		return vectors, nil
	})
	store := newMemStore()
	u, err := NewUpserter(embedder, store, WithBatchSize(1))
	require.NoError(t, err)

	_, err = u.Upsert(context.Background(), "docs", chunksOf("a", "b"))
	assert.ErrorIs(t, err, ErrEmbedOrStore)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, store.adds)
}

func TestUpsert_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.failOn = 1
	u, err := NewUpserter(mock.NewMockEmbedder(), store, WithBatchSize(1))
	require.NoError(t, err)

	ids, err := u.Upsert(context.Background(), "docs", chunksOf("a", "b", "c"))
	assert.ErrorIs(t, err, ErrEmbedOrStore)
	assert.Nil(t, ids)
	assert.Empty(t, store.entries["docs"])
}

func TestUpsert_Normalization(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{3, 4}}, nil
	})
	store := newMemStore()
	u, err := NewUpserter(embedder, store, WithNormalization(true))
	require.NoError(t, err)

	_, err = u.Upsert(context.Background(), "docs", chunksOf("a"))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, store.entries["docs"][0].Vector, 1e-6)
}

func TestQuery_FindsStoredPassage(t *testing.T) {
	u, err := NewUpserter(mock.NewMockEmbedder(), newMemStore())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = u.Upsert(ctx, "docs", chunksOf("alpha passage", "beta passage", "gamma passage"))
	require.NoError(t, err)

	hits, err := u.Query(ctx, "docs", "beta passage", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "beta passage", hits[0].Content)
	assert.InDelta(t, 0, hits[0].Score, 1e-6)

	_, err = u.Query(ctx, "docs", "beta", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)

	hits, err = u.Query(ctx, "docs", "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
