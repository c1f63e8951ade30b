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

import "errors"

// Domain validation errors
var (
	// ErrInvalidPipelineJob indicates a PipelineJob failed validation.
	ErrInvalidPipelineJob = errors.New("invalid pipeline job")

	// ErrEmptyFileLocation indicates the FileLocation field is empty.
	ErrEmptyFileLocation = errors.New("file location cannot be empty")

	// ErrInvalidFileVersion indicates a file version below 1.
	ErrInvalidFileVersion = errors.New("file version must be at least 1")

	// ErrInvalidJobStatus indicates an unknown JobStatus value.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrEmptyCollection indicates a missing target collection name.
	ErrEmptyCollection = errors.New("collection name cannot be empty")
)
