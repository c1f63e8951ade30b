package ingestion

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrSplitterRequired is returned when a splitter is not provided.
	ErrSplitterRequired = errors.New("splitter required")

	// ErrUpserterRequired is returned when an upserter is not provided.
	ErrUpserterRequired = errors.New("upserter required")

	// ErrQueueFull is returned by Submit when the pending job cap is reached.
	// The job's record is marked FAILED.
	ErrQueueFull = errors.New("ingestion queue is full")

	// ErrPipelineClosed is returned by Submit after Release.
	ErrPipelineClosed = errors.New("pipeline is closed")

	// ErrJobTimeout is recorded when a job exceeds its time limit.
	ErrJobTimeout = errors.New("job timed out")
)
