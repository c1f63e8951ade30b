package sqldb

import (
	"time"

	"github.com/poiesic/docingest/core"
)

// pipelineRecord is the relational row for a PipelineJob.
type pipelineRecord struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	FileLocation string    `gorm:"type:varchar(512);not null;uniqueIndex:uk_file_version,priority:1"`
	FileVersion  int64     `gorm:"not null;default:1;uniqueIndex:uk_file_version,priority:2"`
	Status       int       `gorm:"not null;default:0;index:idx_status_updated,priority:1"`
	Message      *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index:idx_status_updated,priority:2"`
}

func (pipelineRecord) TableName() string {
	return "pipeline_record"
}

func (r *pipelineRecord) toJob() *core.PipelineJob {
	return &core.PipelineJob{
		Id:           core.ID(r.ID),
		FileLocation: r.FileLocation,
		FileVersion:  r.FileVersion,
		Status:       core.JobStatus(r.Status),
		Message:      r.Message,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}
