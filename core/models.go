package core

import (
	"encoding/binary"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// JobStatus is the lifecycle state of a pipeline job.
// The numeric values are persisted and must not change.
type JobStatus int

const (
	JobStatusPending JobStatus = iota
	JobStatusRunning
	JobStatusSucceeded
	JobStatusFailed
)

var jobStatusNames = [...]string{"PENDING", "RUNNING", "SUCCEEDED", "FAILED"}

func (s JobStatus) String() string {
	if s < JobStatusPending || s > JobStatusFailed {
		return fmt.Sprintf("JobStatus(%d)", int(s))
	}
	return jobStatusNames[s]
}

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// ParseJobStatus accepts either the status name (case-insensitive) or its number.
func ParseJobStatus(s string) (JobStatus, error) {
	s = strings.TrimSpace(s)
	for i, name := range jobStatusNames {
		if strings.EqualFold(s, name) {
			return JobStatus(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		status := JobStatus(n)
		if err := ValidateJobStatus(status); err == nil {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidJobStatus, s)
}

// PipelineJob tracks one attempt at ingesting one version of a file.
type PipelineJob struct {
	Id           ID
	FileLocation string
	FileVersion  int64
	Status       JobStatus
	Message      *string // nil until a diagnostic is recorded
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageOrEmpty returns the stored message, or "" when none is set.
func (j *PipelineJob) MessageOrEmpty() string {
	if j.Message == nil {
		return ""
	}
	return *j.Message
}

// Metadata carries provenance for pages and chunks.
type Metadata map[string]string

// Clone returns an independent copy. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+4)
	maps.Copy(out, m)
	return out
}

// SetInt stores an integer value.
func (m Metadata) SetInt(key string, v int) {
	m[key] = strconv.Itoa(v)
}

// Int returns an integer value and whether it was present and well formed.
func (m Metadata) Int(key string) (int, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Well-known metadata keys.
const (
	MetaSource       = "source"
	MetaPage         = "page"
	MetaTotalPages   = "total_pages"
	MetaSheet        = "sheet"
	MetaBlock        = "block"
	MetaPageIndex    = "page_index"
	MetaChunkIndex   = "chunk_index"
	MetaStartOffset  = "start_offset"
	MetaFileName     = "file_name"
	MetaFileLocation = "file_location"
)

// Page is one extracted unit of text: a physical page, a sheet,
// a whole text file, or one OCR block.
type Page struct {
	Content  string
	Metadata Metadata
}

// Chunk is a bounded passage cut from a page, ready to be embedded.
type Chunk struct {
	Content  string
	Metadata Metadata
}

// SearchHit is one result of a nearest-neighbor query against a collection.
// Lower scores are closer for L2-based stores.
type SearchHit struct {
	ChunkID  string
	Content  string
	Metadata Metadata
	Score    float32
}
