package ingestion

import (
	"fmt"
	"path/filepath"

	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/extract"
)

// JobContext is the state one job carries through the chain. It is owned by
// a single worker and never shared.
type JobContext struct {
	FileLocation     string
	TargetCollection string
	RecordID         core.ID
	FileName         string
	Extension        string

	// Pages is dropped once chunked and Chunks once stored.
	Pages    []core.Page
	Chunks   []core.Chunk
	ChunkIDs []string

	Success     bool
	Message     *string
	FailedStage string
}

// NewJobContext prepares a job for fileLocation.
func NewJobContext(fileLocation, targetCollection string, recordID core.ID) *JobContext {
	return &JobContext{
		FileLocation:     fileLocation,
		TargetCollection: targetCollection,
		RecordID:         recordID,
		FileName:         filepath.Base(fileLocation),
		Extension:        extract.Extension(fileLocation),
		Success:          true,
	}
}

func (j *JobContext) fail(stage string, err error) {
	msg := fmt.Sprintf("%s: %v", stage, err)
	j.Success = false
	j.Message = &msg
	j.FailedStage = stage
}
