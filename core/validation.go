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


package core

import (
	"fmt"
	"strings"
)

// ValidatePipelineJob validates a PipelineJob before it is persisted.
//
// Validation rules:
//   - FileLocation must not be blank
//   - FileVersion must be >= 1
//   - Status must be one of the four lifecycle states
//
// NOT validated (assigned by the store):
//   - ID
//   - CreatedAt / UpdatedAt
func ValidatePipelineJob(job *PipelineJob) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidPipelineJob)
	}

	if strings.TrimSpace(job.FileLocation) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPipelineJob, ErrEmptyFileLocation)
	}

	if job.FileVersion < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidPipelineJob, ErrInvalidFileVersion)
	}

	if err := ValidateJobStatus(job.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPipelineJob, err)
	}

	return nil
}

// ValidateJobStatus validates that a JobStatus has a known value.
func ValidateJobStatus(status JobStatus) error {
	if status < JobStatusPending || status > JobStatusFailed {
		return fmt.Errorf("%w: value %d", ErrInvalidJobStatus, status)
	}
	return nil
}

// ValidateCollection checks a target collection name.
func ValidateCollection(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyCollection
	}
	return nil
}
