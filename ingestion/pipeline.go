package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/storage"
)

// DefaultPoolSize is the number of jobs processed concurrently.
const DefaultPoolSize = 2

// Pipeline accepts file submissions and processes them off the caller's path.
type Pipeline struct {
	records    storage.RecordRepository
	chain      *Chain
	pool       *ants.Pool
	poolSize   int
	queueCap   int
	jobTimeout time.Duration
	logger     *slog.Logger

	// mu orders Submit against Release so no job is accepted once the
	// pipeline starts draining.
	mu      sync.RWMutex
	closed  bool
	jobs    sync.WaitGroup
	pending atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of worker goroutines.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithQueueCapacity caps how many accepted jobs may wait for a worker.
// Zero means unbounded. Default is 0.
func WithQueueCapacity(capacity int) Option {
	return func(p *Pipeline) error {
		if capacity < 0 {
			return fmt.Errorf("queue capacity must not be negative, got %d", capacity)
		}
		p.queueCap = capacity
		return nil
	}
}

// WithJobTimeout limits how long one job may run before it is recorded as
// failed. Zero disables the limit. Default is 0.
func WithJobTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout < 0 {
			return fmt.Errorf("job timeout must not be negative, got %s", timeout)
		}
		p.jobTimeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

func newPool(size int, logger *slog.Logger) (*ants.Pool, error) {
	return ants.NewPool(size, ants.WithPanicHandler(func(r any) {
		logger.Error("worker panicked", "panic", r)
	}))
}

// NewPipeline creates a pipeline running the default stages.
func NewPipeline(
	records storage.RecordRepository,
	extractor Extractor,
	splitter Splitter,
	upserter Upserter,
	opts ...Option,
) (*Pipeline, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if splitter == nil {
		return nil, ErrSplitterRequired
	}
	if upserter == nil {
		return nil, ErrUpserterRequired
	}
	return NewPipelineWithStages(records, DefaultStages(extractor, splitter, upserter), opts...)
}

// NewPipelineWithStages creates a pipeline running a custom stage list.
func NewPipelineWithStages(records storage.RecordRepository, stages []Stage, opts ...Option) (*Pipeline, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}

	p := &Pipeline{
		records:  records,
		poolSize: DefaultPoolSize,
		logger:   slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")

	pool, err := newPool(p.poolSize, p.logger)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	chain, err := NewChain(records, stages, WithChainLogger(p.logger), WithTimeout(p.jobTimeout))
	if err != nil {
		p.Release()
		return nil, err
	}
	p.chain = chain
	return p, nil
}

// Submit records a new version of fileLocation as RUNNING and schedules it
// for ingestion into targetCollection. It returns the record ID without
// waiting for the job to run.
func (p *Pipeline) Submit(ctx context.Context, fileLocation, targetCollection string) (core.ID, error) {
	if strings.TrimSpace(fileLocation) == "" {
		return 0, core.ErrEmptyFileLocation
	}
	if err := core.ValidateCollection(targetCollection); err != nil {
		return 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, ErrPipelineClosed
	}

	record, err := p.records.CreateNextRecord(ctx, fileLocation, core.JobStatusRunning, nil)
	if err != nil {
		return 0, fmt.Errorf("recording %s: %w", fileLocation, err)
	}
	id := record.Id

	if !p.reserve() {
		p.reject(ctx, id, fmt.Sprintf("rejected: %v (%d jobs pending)", ErrQueueFull, p.pending.Load()))
		return id, ErrQueueFull
	}

	job := NewJobContext(fileLocation, targetCollection, id)
	p.jobs.Add(1)
	go p.dispatch(job)

	p.logger.Info("job submitted",
		"record_id", id,
		"file", job.FileName,
		"version", record.FileVersion,
		"collection", targetCollection)
	return id, nil
}

// reserve takes a pending slot, failing when the queue is capped and full.
func (p *Pipeline) reserve() bool {
	for {
		n := p.pending.Load()
		if p.queueCap > 0 && n >= int64(p.poolSize+p.queueCap) {
			return false
		}
		if p.pending.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// dispatch blocks until a worker takes the job.
func (p *Pipeline) dispatch(job *JobContext) {
	err := p.pool.Submit(func() {
		defer p.done()
		p.chain.Run(context.Background(), job)
	})
	if err != nil {
		defer p.done()
		p.reject(context.Background(), job.RecordID, fmt.Sprintf("rejected: %v", err))
	}
}

func (p *Pipeline) done() {
	p.pending.Add(-1)
	p.jobs.Done()
}

func (p *Pipeline) reject(ctx context.Context, id core.ID, msg string) {
	status := core.JobStatusFailed
	if _, err := p.records.UpdateRecord(context.WithoutCancel(ctx), id, &status, &msg); err != nil {
		p.logger.Error("failed to record rejected job", "record_id", id, "err", err)
	}
	p.logger.Warn("job rejected", "record_id", id, "reason", msg)
}

// Pending returns the number of accepted jobs not yet finished.
func (p *Pipeline) Pending() int {
	return int(p.pending.Load())
}

// Wait blocks until every accepted job has reached a terminal status.
func (p *Pipeline) Wait() {
	p.jobs.Wait()
}

// Release stops accepting jobs, waits for accepted ones to finish and
// releases the worker pool. The pipeline should not be used afterwards.
func (p *Pipeline) Release() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.jobs.Wait()
	if p.pool != nil {
		p.pool.Release()
	}
}

// Stages returns the chain's stage names in run order.
func (p *Pipeline) Stages() []string {
	return p.chain.Stages()
}

// SupportedExtensions returns the format categories this pipeline accepts.
func (p *Pipeline) SupportedExtensions() map[string]extract.Category {
	return extract.SupportedExtensions()
}

// SupportedExtensionSet returns every accepted file extension.
func (p *Pipeline) SupportedExtensionSet() map[string]struct{} {
	return extract.SupportedExtensionSet()
}
