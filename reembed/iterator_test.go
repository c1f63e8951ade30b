package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/docingest/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDocs(n int) []vectorstore.Document {
	docs := make([]vectorstore.Document, n)
	for i := range docs {
		docs[i] = vectorstore.Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Content: fmt.Sprintf("content %d", i),
			Vector:  []float32{float32(i)},
		}
	}
	return docs
}

func TestDocumentIterator_BatchSizes(t *testing.T) {
	tests := []struct {
		name      string
		docs      int
		batchSize int
		want      []int
	}{
		{"exact multiple", 6, 3, []int{3, 3}},
		{"remainder", 7, 3, []int{3, 3, 1}},
		{"single batch", 2, 10, []int{2}},
		{"empty", 0, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := NewDocumentIterator(makeDocs(tt.docs), tt.batchSize)
			assert.Equal(t, tt.docs, it.Len())

			var sizes []int
			err := it.ForEach(context.Background(), func(batch []vectorstore.Document) error {
				sizes = append(sizes, len(batch))
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestDocumentIterator_InvalidBatchSize(t *testing.T) {
	it := NewDocumentIterator(makeDocs(1), 0)
	assert.Equal(t, DefaultBatchSize, it.batchSize)
}

func TestDocumentIterator_InPlaceEdits(t *testing.T) {
	docs := makeDocs(4)
	it := NewDocumentIterator(docs, 3)

	err := it.ForEach(context.Background(), func(batch []vectorstore.Document) error {
		for i := range batch {
			batch[i].Vector = []float32{-1}
		}
		return nil
	})
	require.NoError(t, err)
	for _, doc := range docs {
		assert.Equal(t, []float32{-1}, doc.Vector)
	}
}

func TestDocumentIterator_ErrorHandling(t *testing.T) {
	boom := errors.New("batch failed")
	calls := 0
	err := NewDocumentIterator(makeDocs(9), 3).ForEach(context.Background(), func([]vectorstore.Document) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDocumentIterator_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewDocumentIterator(makeDocs(9), 3).ForEach(ctx, func([]vectorstore.Document) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
