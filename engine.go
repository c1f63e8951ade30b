// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.



package docingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/ai/openai"
	"github.com/poiesic/docingest/chunk"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
	"github.com/poiesic/docingest/ingestion"
	"github.com/poiesic/docingest/reembed"
	"github.com/poiesic/docingest/search"
	"github.com/poiesic/docingest/storage"
	"github.com/poiesic/docingest/storage/badger"
	"github.com/poiesic/docingest/storage/sqldb"
	"github.com/poiesic/docingest/vectorstore"
	"github.com/poiesic/docingest/vectorstore/flat"
	"github.com/poiesic/docingest/vectorstore/milvus"
)

// ErrReembedUnsupported is returned by Reembed when the configured vector
// store cannot read back and replace a collection.
var ErrReembedUnsupported = errors.New("vector store does not support re-embedding")

// Engine wires a record store, a vector store, the AI services and the
// ingestion pipeline built on them.
type Engine struct {
	config       *Config
	backend      *badger.Backend
	records      storage.RecordRepository
	store        vectorstore.Store
	provider     ai.AIProvider
	ownsProvider bool
	upserter     *vectorstore.Upserter
	pipeline     *ingestion.Pipeline
	searcher     *search.Searcher
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger   *slog.Logger
	provider ai.AIProvider
}

// WithLogger sets the logger handed to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProvider supplies the AI services instead of building an OpenAI
// compatible provider from the config. The caller keeps ownership.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// NewEngine opens the stores named by config and starts the ingestion pool.
// A nil config means DefaultConfig().
func NewEngine(ctx context.Context, config *Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: config,
		logger: options.logger.With("component", "engine"),
	}

	// Any failure past this point unwinds what was opened so far
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	if err := e.openRecords(options.logger); err != nil {
		return nil, err
	}
	if err := e.openVectorStore(ctx, options.logger); err != nil {
		return nil, err
	}

	if options.provider != nil {
		e.provider = options.provider
	} else {
		provider, err := openai.NewProvider(config.AI)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI provider: %w", err)
		}
		e.provider = provider
		e.ownsProvider = true
	}

	extractor, err := extract.NewExtractor(
		extract.WithLogger(options.logger),
		extract.WithRecognizer(e.provider.TextRecognizer()),
	)
	if err != nil {
		return nil, err
	}

	splitter, err := chunk.NewSplitter(config.Chunk)
	if err != nil {
		return nil, err
	}

	e.upserter, err = vectorstore.NewUpserter(e.provider.Embedder(), e.store,
		vectorstore.WithBatchSize(config.AI.EmbeddingBatchSize),
		vectorstore.WithNormalization(config.NormalizeVectors),
		vectorstore.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	e.pipeline, err = ingestion.NewPipeline(e.records, extractor, splitter, e.upserter,
		ingestion.WithPoolSize(config.Workers),
		ingestion.WithQueueCapacity(config.QueueCapacity),
		ingestion.WithJobTimeout(config.JobTimeout),
		ingestion.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	e.searcher, err = search.NewSearcher(e.upserter,
		search.WithCandidateFactor(config.Search.CandidateFactor),
		search.WithMaxDistance(config.Search.MaxDistance),
		search.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	e.logger.Info("engine ready",
		"records", config.RecordStore.Driver,
		"vectors", config.VectorStore.Backend,
		"workers", config.Workers)
	return e, nil
}

func (e *Engine) openRecords(logger *slog.Logger) error {
	rc := e.config.RecordStore
	if rc.Driver != RecordStoreBadger {
		repo, err := sqldb.Open(rc.Driver, rc.DSN, sqldb.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to open record store: %w", err)
		}
		e.records = repo
		return nil
	}

	backend, err := badger.OpenBackend(rc.DSN, false)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	e.backend = backend

	repo, err := badger.NewRecordRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to create record repository: %w", err)
	}
	e.records = repo
	return nil
}

func (e *Engine) openVectorStore(ctx context.Context, logger *slog.Logger) error {
	vc := e.config.VectorStore
	switch vc.Backend {
	case VectorStoreMilvus:
		store, err := milvus.Open(ctx, vc.Milvus, milvus.WithLogger(logger))
		if err != nil {
			return err
		}
		e.store = store
	default:
		store, err := flat.Open(vc.Dir, flat.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to open vector index: %w", err)
		}
		e.store = store
	}
	return nil
}

// Close drains in-flight jobs and closes everything in reverse order of
// opening. All close errors are returned joined.
func (e *Engine) Close() error {
	var errs []error
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil && e.ownsProvider {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if e.records != nil {
		if err := e.records.Close(); err != nil {
			e.logger.Error("error closing record repository", "err", err)
			errs = append(errs, err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Submit records a new version of fileLocation and queues it for ingestion
// into targetCollection.
func (e *Engine) Submit(ctx context.Context, fileLocation, targetCollection string) (core.ID, error) {
	return e.pipeline.Submit(ctx, fileLocation, targetCollection)
}

// Wait blocks until every submitted job has finished.
func (e *Engine) Wait() {
	e.pipeline.Wait()
}

// Record returns the job with id.
func (e *Engine) Record(ctx context.Context, id core.ID) (*core.PipelineJob, error) {
	return e.records.GetRecord(ctx, id)
}

// Status returns the newest job for fileLocation, or storage.ErrNotFound.
func (e *Engine) Status(ctx context.Context, fileLocation string) (*core.PipelineJob, error) {
	return e.records.LatestRecord(ctx, fileLocation)
}

// Jobs lists jobs in status, least recently updated first. A limit of zero
// returns all of them.
func (e *Engine) Jobs(ctx context.Context, status core.JobStatus, limit int) ([]*core.PipelineJob, error) {
	return e.records.ListByStatus(ctx, status, limit)
}

// Search returns up to maxHits chunks of collection relevant to query.
func (e *Engine) Search(ctx context.Context, collection, query string, maxHits int) ([]*search.Result, error) {
	return e.searcher.FindSimilar(ctx, collection, query, maxHits)
}

// Reembed recomputes every vector of collection with the current embedder,
// writing progress to w. Chunks ingested while it runs are embedded too
// before the collection is replaced.
func (e *Engine) Reembed(ctx context.Context, collection string, w io.Writer) (*reembed.Stats, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}
	rewriter, ok := e.store.(vectorstore.Rewriter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReembedUnsupported, e.config.VectorStore.Backend)
	}

	cfg := *e.config.Reembed
	cfg.Normalize = e.config.NormalizeVectors
	r, err := reembed.NewReembedder(rewriter, e.provider.Embedder(), &cfg, w, e.logger)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, collection)
}

// SupportedExtensions maps each accepted extension to its format category.
func (e *Engine) SupportedExtensions() map[string]extract.Category {
	return e.pipeline.SupportedExtensions()
}

// Config returns the normalized configuration the engine runs with.
func (e *Engine) Config() *Config {
	return e.config
}

// Records exposes the record repository.
func (e *Engine) Records() storage.RecordRepository {
	return e.records
}
