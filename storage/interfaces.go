package storage

import (
	"context"

	"github.com/poiesic/docingest/core"
)

// RecordRepository persists PipelineJob records.
// Implementations must be thread-safe and support concurrent access.
type RecordRepository interface {
	// CreateRecord inserts a new job and returns its generated ID.
	// Returns ErrDuplicateVersion if (fileLocation, fileVersion) already exists.
	CreateRecord(ctx context.Context, fileLocation string, fileVersion int64, status core.JobStatus, message *string) (core.ID, error)

	// CreateNextRecord inserts a job for the next version of fileLocation,
	// allocating the version and inserting in one step so concurrent callers
	// for the same location each get their own version.
	CreateNextRecord(ctx context.Context, fileLocation string, status core.JobStatus, message *string) (*core.PipelineJob, error)

	// UpdateRecord applies a partial update. A nil status or message leaves
	// the stored field unchanged. UpdatedAt is always refreshed.
	// Returns false (and no error) if the record does not exist.
	UpdateRecord(ctx context.Context, id core.ID, status *core.JobStatus, message *string) (bool, error)

	// GetRecord retrieves a single job by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.PipelineJob, error)

	// LatestRecord returns the highest version recorded for a file location.
	// Returns ErrNotFound if the location has never been submitted.
	LatestRecord(ctx context.Context, fileLocation string) (*core.PipelineJob, error)

	// NextVersion returns the version a new submission of fileLocation should use:
	// 1 for unseen locations, otherwise one past the latest.
	NextVersion(ctx context.Context, fileLocation string) (int64, error)

	// ListByStatus returns up to limit jobs in the given status, least recently
	// updated first. A limit <= 0 returns all matches.
	ListByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.PipelineJob, error)

	// Close releases resources held by the repository.
	Close() error
}
