package docingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/docingest/ai/mock"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/storage"
	"github.com/poiesic/docingest/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...ConfigOption) (*Engine, *mock.MockEmbedder) {
	embedder := mock.NewMockEmbedder().WithDimension(8)
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockRecognizer())

	cfg := NewConfig(append([]ConfigOption{WithDataDir(t.TempDir())}, opts...)...)
	engine, err := NewEngine(context.Background(), cfg, WithProvider(provider))
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine, embedder
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewEngine(t *testing.T) {
	t.Run("defaults to badger and flat under the data dir", func(t *testing.T) {
		engine, _ := newTestEngine(t)

		assert.NotNil(t, engine.backend)
		assert.NotNil(t, engine.Records())
		assert.Equal(t, RecordStoreBadger, engine.Config().RecordStore.Driver)
		assert.DirExists(t, engine.Config().VectorStore.Dir)
		assert.Contains(t, engine.SupportedExtensions(), extract.CategoryPDF)
	})

	t.Run("sqlite record store", func(t *testing.T) {
		dsn := filepath.Join(t.TempDir(), "records.db")
		engine, _ := newTestEngine(t, WithRecordStore(RecordStoreSQLite, dsn))

		assert.Nil(t, engine.backend)
		assert.FileExists(t, dsn)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := NewConfig(WithDataDir(t.TempDir()), WithRecordStore("oracle", "x"))
		engine, err := NewEngine(context.Background(), cfg, WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, engine)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		// A data dir that is a file cannot hold the badger directory
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0o644))

		engine, err := NewEngine(context.Background(), NewConfig(WithDataDir(tmpFile)), WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, engine)
	})
}

func TestEngine_IngestAndSearch(t *testing.T) {
	engine, embedder := newTestEngine(t)
	ctx := context.Background()

	path := writeFile(t, "notes.txt", "Hello world. This is a test.")
	id, err := engine.Submit(ctx, path, "kb")
	require.NoError(t, err)
	engine.Wait()

	job, err := engine.Record(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusSucceeded, job.Status)
	assert.Nil(t, job.Message)

	latest, err := engine.Status(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, id, latest.Id)
	assert.Equal(t, int64(1), latest.FileVersion)

	succeeded, err := engine.Jobs(ctx, core.JobStatusSucceeded, 0)
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, id, succeeded[0].Id)
	assert.Equal(t, 1, embedder.EmbeddedCount())

	results, err := engine.Search(ctx, "kb", "Hello world. This is a test.", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Hello world. This is a test.", results[0].Hit.Content)
	assert.Equal(t, "notes.txt", results[0].Hit.Metadata[core.MetaFileName])
	assert.True(t, results[0].Verbatim)

	results, err = engine.Search(ctx, "other", "Hello", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_StatusUnknownFile(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Status(context.Background(), "/nowhere.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_FailedJob(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	path := writeFile(t, "data.xyz", "whatever")
	id, err := engine.Submit(ctx, path, "kb")
	require.NoError(t, err)
	engine.Wait()

	job, err := engine.Record(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.MessageOrEmpty(), "parse:")
}

func TestEngine_Reembed(t *testing.T) {
	engine, embedder := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := engine.Submit(ctx, writeFile(t, name, "contents of "+name), "kb")
		require.NoError(t, err)
	}
	engine.Wait()
	embedder.Reset()

	var progress bytes.Buffer
	stats, err := engine.Reembed(ctx, "kb", &progress)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 8, stats.Dimension)
	assert.Equal(t, 2, embedder.EmbeddedCount())
	assert.Contains(t, progress.String(), "Reembedding complete")

	_, err = engine.Reembed(ctx, " ", &progress)
	assert.ErrorIs(t, err, core.ErrEmptyCollection)
}

// appendOnlyStore is a vectorstore.Store that is not a Rewriter.
type appendOnlyStore struct {
	vectorstore.Store
}

func TestEngine_ReembedUnsupported(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.store = appendOnlyStore{Store: engine.store}

	_, err := engine.Reembed(context.Background(), "kb", nil)
	assert.ErrorIs(t, err, ErrReembedUnsupported)
}

func TestEngine_Close(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithDimension(8)
	cfg := NewConfig(WithDataDir(t.TempDir()))
	engine, err := NewEngine(context.Background(), cfg, WithProvider(mock.NewMockProviderWithServices(embedder, nil)))
	require.NoError(t, err)

	assert.NoError(t, engine.Close())
}
