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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/vectorstore"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents embedded per call
	BatchSize int `yaml:"batch_size"`

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int `yaml:"report_interval"`

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Normalize scales new vectors to unit length
	Normalize bool `yaml:"normalize"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Stats summarizes a completed run.
type Stats struct {
	Documents int
	Dimension int
	Elapsed   time.Duration
}

// Reembedder re-embeds whole collections of a rewritable store.
type Reembedder struct {
	store    vectorstore.Rewriter
	embedder ai.Embedder
	config   *Config
	progress io.Writer
	logger   *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(store vectorstore.Rewriter, embedder ai.Embedder, config *Config, progress io.Writer, logger *slog.Logger) (*Reembedder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reembedder{
		store:    store,
		embedder: embedder,
		config:   config,
		progress: progress,
		logger:   logger.With("component", "reembedder"),
	}, nil
}

// catchUpRounds bounds how often Run re-reads a collection that keeps
// changing underneath it.
const catchUpRounds = 5

// Run re-embeds every document of collection and replaces the collection
// once all batches succeed. Documents added while it runs are picked up
// and embedded before the replace, so none are lost.
func (r *Reembedder) Run(ctx context.Context, collection string) (*Stats, error) {
	if err := core.ValidateCollection(collection); err != nil {
		return nil, err
	}

	docs, revision, err := r.store.Read(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %q: %w", collection, err)
	}
	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No documents found in collection %q\n", collection)
		return &Stats{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d documents in %q (batch size: %d)\n",
		len(docs), collection, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, "docs", len(docs), r.config.ReportInterval)
	tracker.Start()

	processor := NewBatchProcessor(r.embedder, r.config.MaxRetries, r.config.RetryDelay, r.config.Normalize, r.logger)
	embedded := make(map[string][]float32, len(docs))
	pending := docs

	for round := 1; ; round++ {
		err = NewDocumentIterator(pending, r.config.BatchSize).ForEach(ctx, func(batch []vectorstore.Document) error {
			if err := processor.Process(ctx, batch); err != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
			for _, doc := range batch {
				embedded[doc.ID] = doc.Vector
			}
			tracker.Increment(len(batch))
			return nil
		})
		if err != nil {
			return nil, err
		}

		for i := range docs {
			docs[i].Vector = embedded[docs[i].ID]
		}
		err = r.store.Replace(ctx, collection, docs, revision)
		if err == nil {
			break
		}
		if !errors.Is(err, vectorstore.ErrCollectionChanged) || round == catchUpRounds {
			return nil, fmt.Errorf("failed to replace collection %q: %w", collection, err)
		}

		docs, revision, err = r.store.Read(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("failed to read collection %q: %w", collection, err)
		}
		pending = nil
		for _, doc := range docs {
			if _, ok := embedded[doc.ID]; !ok {
				pending = append(pending, doc)
			}
		}
		tracker.Grow(len(pending))
		fmt.Fprintf(r.progress, "Collection changed during reembedding, catching up %d new documents\n", len(pending))
		r.logger.Info("collection changed, catching up",
			"collection", collection,
			"round", round,
			"new_documents", len(pending))
	}
	tracker.Finish()

	stats := &Stats{
		Documents: len(docs),
		Dimension: processor.Dimension(),
		Elapsed:   tracker.Elapsed(),
	}
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d documents in %v (%.1f docs/sec)\n",
		stats.Documents, stats.Elapsed.Round(time.Millisecond), tracker.Rate())
	r.logger.Info("collection reembedded",
		"collection", collection,
		"documents", stats.Documents,
		"dim", stats.Dimension)
	return stats, nil
}
