package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRecordRepo(t *testing.T) storage.RecordRepository {
	repo, backend, err := NewMemoryRecordRepository()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo
}

func statusPtr(s core.JobStatus) *core.JobStatus { return &s }

func strPtr(s string) *string { return &s }

func TestRecordRepository_CreateAndGet(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	id, err := repo.CreateRecord(ctx, "/files/a.txt", 1, core.JobStatusRunning, nil)
	require.NoError(t, err)
	assert.NotZero(t, id)

	job, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, job.Id)
	assert.Equal(t, "/files/a.txt", job.FileLocation)
	assert.Equal(t, int64(1), job.FileVersion)
	assert.Equal(t, core.JobStatusRunning, job.Status)
	assert.Nil(t, job.Message)
	assert.False(t, job.CreatedAt.IsZero())
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
}

func TestRecordRepository_DuplicateVersion(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	_, err := repo.CreateRecord(ctx, "/files/a.txt", 1, core.JobStatusRunning, nil)
	require.NoError(t, err)

	_, err = repo.CreateRecord(ctx, "/files/a.txt", 1, core.JobStatusPending, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateVersion)

	// Same version of a different location is fine
	_, err = repo.CreateRecord(ctx, "/files/b.txt", 1, core.JobStatusRunning, nil)
	assert.NoError(t, err)
}

func TestRecordRepository_CreateValidates(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	_, err := repo.CreateRecord(ctx, "", 1, core.JobStatusRunning, nil)
	assert.ErrorIs(t, err, core.ErrEmptyFileLocation)

	_, err = repo.CreateRecord(ctx, "/files/a.txt", 0, core.JobStatusRunning, nil)
	assert.ErrorIs(t, err, core.ErrInvalidFileVersion)
}

func TestRecordRepository_UpdateMissing(t *testing.T) {
	repo := setupRecordRepo(t)

	ok, err := repo.UpdateRecord(context.Background(), 999, statusPtr(core.JobStatusFailed), strPtr("x"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRepository_PartialUpdate(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	id, err := repo.CreateRecord(ctx, "/files/a.txt", 1, core.JobStatusRunning, nil)
	require.NoError(t, err)

	ok, err := repo.UpdateRecord(ctx, id, nil, strPtr("halfway"))
	require.NoError(t, err)
	require.True(t, ok)

	job, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusRunning, job.Status)
	assert.Equal(t, "halfway", job.MessageOrEmpty())

	ok, err = repo.UpdateRecord(ctx, id, statusPtr(core.JobStatusSucceeded), nil)
	require.NoError(t, err)
	require.True(t, ok)

	job, err = repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusSucceeded, job.Status)
	assert.Equal(t, "halfway", job.MessageOrEmpty())
}

func TestRecordRepository_UpdateIsIdempotent(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	id, err := repo.CreateRecord(ctx, "/files/a.txt", 1, core.JobStatusRunning, nil)
	require.NoError(t, err)

	for range 2 {
		ok, err := repo.UpdateRecord(ctx, id, statusPtr(core.JobStatusFailed), strPtr("m"))
		require.NoError(t, err)
		require.True(t, ok)
	}

	job, err := repo.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Equal(t, "m", job.MessageOrEmpty())

	// The status index holds exactly one entry for the job
	failed, err := repo.ListByStatus(ctx, core.JobStatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].Id)

	running, err := repo.ListByStatus(ctx, core.JobStatusRunning, 0)
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestRecordRepository_UpdateRejectsUnknownStatus(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	id, err := repo.CreateRecord(ctx, "/files/a.txt", 1, core.JobStatusRunning, nil)
	require.NoError(t, err)

	_, err = repo.UpdateRecord(ctx, id, statusPtr(core.JobStatus(8)), nil)
	assert.ErrorIs(t, err, core.ErrInvalidJobStatus)
}

func TestRecordRepository_LatestAndNextVersion(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	_, err := repo.LatestRecord(ctx, "/files/a.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	v, err := repo.NextVersion(ctx, "/files/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// Insert out of order and past one byte to check numeric ordering
	for _, version := range []int64{2, 1, 300, 7} {
		_, err := repo.CreateRecord(ctx, "/files/a.txt", version, core.JobStatusRunning, nil)
		require.NoError(t, err)
	}
	// A location sharing the prefix must not interfere
	_, err = repo.CreateRecord(ctx, "/files/a.txt.bak", 900, core.JobStatusRunning, nil)
	require.NoError(t, err)

	latest, err := repo.LatestRecord(ctx, "/files/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(300), latest.FileVersion)

	v, err = repo.NextVersion(ctx, "/files/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(301), v)
}

func TestRecordRepository_ListByStatusOrderAndLimit(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	var ids []core.ID
	for i := range 5 {
		id, err := repo.CreateRecord(ctx, fmt.Sprintf("/files/%d.txt", i), 1, core.JobStatusRunning, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Touch the first job so it becomes the most recently updated
	time.Sleep(2 * time.Millisecond)
	_, err := repo.UpdateRecord(ctx, ids[0], nil, strPtr("touched"))
	require.NoError(t, err)

	all, err := repo.ListByStatus(ctx, core.JobStatusRunning, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[0], all[4].Id)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].UpdatedAt.Before(all[i-1].UpdatedAt))
	}

	limited, err := repo.ListByStatus(ctx, core.JobStatusRunning, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordRepository_ConcurrentCreates(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateRecord(ctx, "/files/race.txt", 1, core.JobStatusRunning, nil)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, storage.ErrDuplicateVersion) {
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, dupes)
}

func TestRecordRepository_CreateNextRecord(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	first, err := repo.CreateNextRecord(ctx, "/files/a.txt", core.JobStatusRunning, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.FileVersion)
	assert.NotZero(t, first.Id)

	_, err = repo.CreateRecord(ctx, "/files/a.txt", 7, core.JobStatusSucceeded, nil)
	require.NoError(t, err)

	next, err := repo.CreateNextRecord(ctx, "/files/a.txt", core.JobStatusRunning, strPtr("queued"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), next.FileVersion)

	stored, err := repo.GetRecord(ctx, next.Id)
	require.NoError(t, err)
	assert.Equal(t, "queued", stored.MessageOrEmpty())
	assert.Equal(t, core.JobStatusRunning, stored.Status)

	_, err = repo.CreateNextRecord(ctx, "", core.JobStatusRunning, nil)
	assert.ErrorIs(t, err, core.ErrInvalidPipelineJob)
}

func TestRecordRepository_ConcurrentCreateNextRecord(t *testing.T) {
	repo := setupRecordRepo(t)
	ctx := context.Background()

	const workers = 8
	versions := make([]int64, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := repo.CreateNextRecord(ctx, "/files/race.txt", core.JobStatusRunning, nil)
			if assert.NoError(t, err) {
				versions[i] = job.FileVersion
			}
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, versions)

	next, err := repo.NextVersion(ctx, "/files/race.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), next)
}
