package core

import (
	"errors"
	"testing"
)

func TestValidatePipelineJob(t *testing.T) {
	tests := []struct {
		name    string
		job     *PipelineJob
		wantErr error
	}{
		{
			name:    "valid job",
			job:     &PipelineJob{FileLocation: "/tmp/a.txt", FileVersion: 1, Status: JobStatusRunning},
			wantErr: nil,
		},
		{
			name:    "valid job with zero ID",
			job:     &PipelineJob{Id: 0, FileLocation: "/tmp/a.txt", FileVersion: 7, Status: JobStatusPending},
			wantErr: nil,
		},
		{
			name:    "nil job",
			job:     nil,
			wantErr: ErrInvalidPipelineJob,
		},
		{
			name:    "blank location",
			job:     &PipelineJob{FileLocation: "   ", FileVersion: 1},
			wantErr: ErrEmptyFileLocation,
		},
		{
			name:    "zero version",
			job:     &PipelineJob{FileLocation: "/tmp/a.txt", FileVersion: 0},
			wantErr: ErrInvalidFileVersion,
		},
		{
			name:    "unknown status",
			job:     &PipelineJob{FileLocation: "/tmp/a.txt", FileVersion: 1, Status: JobStatus(12)},
			wantErr: ErrInvalidJobStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePipelineJob(tt.job)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidatePipelineJob() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePipelineJob() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidPipelineJob) {
				t.Errorf("ValidatePipelineJob() error should wrap ErrInvalidPipelineJob, got %v", err)
			}
		})
	}
}

func TestValidateJobStatus(t *testing.T) {
	for s := JobStatusPending; s <= JobStatusFailed; s++ {
		if err := ValidateJobStatus(s); err != nil {
			t.Errorf("ValidateJobStatus(%v) = %v, want nil", s, err)
		}
	}
	if err := ValidateJobStatus(JobStatus(-1)); !errors.Is(err, ErrInvalidJobStatus) {
		t.Errorf("ValidateJobStatus(-1) = %v, want ErrInvalidJobStatus", err)
	}
}

func TestValidateCollection(t *testing.T) {
	if err := ValidateCollection("kb_1"); err != nil {
		t.Errorf("ValidateCollection() unexpected error = %v", err)
	}
	if err := ValidateCollection(" "); !errors.Is(err, ErrEmptyCollection) {
		t.Errorf("ValidateCollection() error = %v, want ErrEmptyCollection", err)
	}
}
