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

	"github.com/poiesic/docingest/vectorstore"
)

// DefaultBatchSize is the default number of documents per batch.
const DefaultBatchSize = 64

// DocumentIterator walks a loaded collection in batches.
type DocumentIterator struct {
	docs      []vectorstore.Document
	batchSize int
}

// NewDocumentIterator creates an iterator over docs.
// batchSize: number of documents per batch; <= 0 selects DefaultBatchSize
func NewDocumentIterator(docs []vectorstore.Document, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentIterator{docs: docs, batchSize: batchSize}
}

// Len returns the number of documents.
func (it *DocumentIterator) Len() int {
	return len(it.docs)
}

// ForEach calls fn with consecutive batches. Batches share the backing
// array, so fn may modify documents in place. Iteration stops on the first
// error from fn or when ctx is done.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func(batch []vectorstore.Document) error) error {
	for start := 0; start < len(it.docs); start += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+it.batchSize, len(it.docs))
		if err := fn(it.docs[start:end]); err != nil {
			return err
		}
	}
	return ctx.Err()
}
