package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
)

// Stage is one step of the chain. A returned error stops the job.
type Stage struct {
	Name string
	Run  func(ctx context.Context, job *JobContext) error
}

// Chain runs stages in order and records the job's outcome.
type Chain struct {
	stages  []Stage
	records storage.RecordRepository
	timeout time.Duration
	logger  *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain) error

// WithChainLogger sets a custom logger.
// Default is slog.Default().
func WithChainLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithTimeout limits the wall-clock time of a whole job. Zero disables
// the limit.
func WithTimeout(timeout time.Duration) ChainOption {
	return func(c *Chain) error {
		if timeout < 0 {
			return fmt.Errorf("job timeout must not be negative, got %s", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

// NewChain creates a chain over stages that reports to records.
func NewChain(records storage.RecordRepository, stages []Stage, opts ...ChainOption) (*Chain, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	c := &Chain{
		stages:  append([]Stage(nil), stages...),
		records: records,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "chain")
	return c, nil
}

// Stages returns the stage names in run order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Run executes the job and issues its single terminal record update.
func (c *Chain) Run(ctx context.Context, job *JobContext) {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	for _, stage := range c.stages {
		logger := c.logger.With("record_id", job.RecordID, "stage", stage.Name)
		logger.Debug("stage started", "file", job.FileName)

		err := c.runStage(runCtx, stage, job)
		if err == nil {
			err = runCtx.Err()
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && c.timeout > 0 {
				err = fmt.Errorf("%w after %s", ErrJobTimeout, c.timeout)
			}
			job.fail(stage.Name, err)
			logger.Warn("stage failed", "file", job.FileName, "err", err)
			break
		}
		logger.Debug("stage finished", "file", job.FileName, "success", job.Success)
	}

	c.finish(ctx, job, time.Since(started))
}

func (c *Chain) runStage(ctx context.Context, stage Stage, job *JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, job)
}

// finish records the terminal status. It uses a context detached from the
// job's deadline so a timed out job can still be marked FAILED.
func (c *Chain) finish(ctx context.Context, job *JobContext, elapsed time.Duration) {
	status := core.JobStatusSucceeded
	var message *string
	if !job.Success {
		status = core.JobStatusFailed
		message = job.Message
	}

	ok, err := c.records.UpdateRecord(context.WithoutCancel(ctx), job.RecordID, &status, message)
	switch {
	case err != nil:
		c.logger.Error("failed to record job status",
			"record_id", job.RecordID, "status", status, "err", err)
	case !ok:
		c.logger.Error("job record disappeared", "record_id", job.RecordID, "status", status)
	default:
		c.logger.Info("job finished",
			"record_id", job.RecordID,
			"file", job.FileName,
			"status", status,
			"chunks", len(job.ChunkIDs),
			"elapsed", elapsed)
	}
}
