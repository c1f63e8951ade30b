package ingestion

import (
	"context"

	"github.com/poiesic/docingest/core"
)

// Stage names, in run order.
const (
	StageParse      = "parse"
	StageChunk      = "chunk"
	StageEmbedStore = "embed_store"
)

// Extractor parses a file into pages.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]core.Page, error)
}

// Splitter cuts pages into chunks.
type Splitter interface {
	SplitPages(pages []core.Page) []core.Chunk
}

// Upserter embeds chunks and stores them in a collection.
type Upserter interface {
	Upsert(ctx context.Context, collection string, chunks []core.Chunk) ([]string, error)
}

// DefaultStages returns parse, chunk and embed_store wired to the given
// collaborators.
func DefaultStages(extractor Extractor, splitter Splitter, upserter Upserter) []Stage {
	return []Stage{
		{Name: StageParse, Run: parseStage(extractor)},
		{Name: StageChunk, Run: chunkStage(splitter)},
		{Name: StageEmbedStore, Run: embedStoreStage(upserter)},
	}
}

func parseStage(extractor Extractor) func(context.Context, *JobContext) error {
	return func(ctx context.Context, job *JobContext) error {
		pages, err := extractor.Extract(ctx, job.FileLocation)
		if err != nil {
			return err
		}
		job.Pages = pages
		return nil
	}
}

func chunkStage(splitter Splitter) func(context.Context, *JobContext) error {
	return func(ctx context.Context, job *JobContext) error {
		chunks := splitter.SplitPages(job.Pages)
		for i := range chunks {
			if chunks[i].Metadata == nil {
				chunks[i].Metadata = core.Metadata{}
			}
			chunks[i].Metadata[core.MetaFileName] = job.FileName
			chunks[i].Metadata[core.MetaFileLocation] = job.FileLocation
		}
		job.Chunks = chunks
		job.Pages = nil
		return nil
	}
}

func embedStoreStage(upserter Upserter) func(context.Context, *JobContext) error {
	return func(ctx context.Context, job *JobContext) error {
		ids, err := upserter.Upsert(ctx, job.TargetCollection, job.Chunks)
		job.ChunkIDs = ids
		if err != nil {
			return err
		}
		job.Chunks = nil
		return nil
	}
}
