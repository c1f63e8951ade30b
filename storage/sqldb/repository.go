// Package sqldb implements storage.RecordRepository on top of GORM so that
// pipeline records can live in the same relational database as the rest of
// an application's file metadata.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// versionAttempts bounds how often CreateNextRecord retries after losing a
// race for the same (location, version) to another writer.
const versionAttempts = 10

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Repository implements storage.RecordRepository using GORM.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ storage.RecordRepository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*options) error

type options struct {
	logger   *slog.Logger
	logLevel gormlogger.LogLevel
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithQueryLogging makes GORM log every statement at debug level.
func WithQueryLogging() Option {
	return func(o *options) error {
		o.logLevel = gormlogger.Info
		return nil
	}
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownDriver, driver)
	}
}

// Open connects to the database and migrates the pipeline_record table.
func Open(driver, dsn string, opts ...Option) (*Repository, error) {
	o := &options{
		logger:   slog.Default(),
		logLevel: gormlogger.Warn,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	logger := o.logger.With("component", "sqldb", "driver", driver)

	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:         newSlogGormLogger(logger, o.logLevel),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if strings.EqualFold(driver, DriverSQLite) {
		// SQLite allows one writer; a single connection also keeps
		// in-memory databases from splitting across connections.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&pipelineRecord{}); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("failed to migrate pipeline_record: %w", err)
	}

	return &Repository{db: db, logger: logger}, nil
}

// NewRepository wraps an existing GORM handle. The caller owns migrations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, logger: slog.Default().With("component", "sqldb")}
}

// Migrate creates or updates the pipeline_record table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&pipelineRecord{})
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	return closeDB(r.db)
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRecord inserts a new pipeline job.
func (r *Repository) CreateRecord(ctx context.Context, fileLocation string, fileVersion int64, status core.JobStatus, message *string) (core.ID, error) {
	job := &core.PipelineJob{
		FileLocation: fileLocation,
		FileVersion:  fileVersion,
		Status:       status,
		Message:      message,
	}
	if err := core.ValidatePipelineJob(job); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	row := &pipelineRecord{
		FileLocation: fileLocation,
		FileVersion:  fileVersion,
		Status:       int(status),
		Message:      message,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&pipelineRecord{}).
			Where("file_location = ? AND file_version = ?", fileLocation, fileVersion).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return storage.ErrDuplicateVersion
		}
		return tx.Create(row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, storage.ErrDuplicateVersion
		}
		return 0, err
	}
	return core.ID(row.ID), nil
}

// CreateNextRecord inserts a job one version past the latest for fileLocation.
// The version is read and the row inserted in one transaction; losing the
// unique index to a concurrent writer retries with a fresh version.
func (r *Repository) CreateNextRecord(ctx context.Context, fileLocation string, status core.JobStatus, message *string) (*core.PipelineJob, error) {
	job := &core.PipelineJob{
		FileLocation: fileLocation,
		FileVersion:  1,
		Status:       status,
		Message:      message,
	}
	if err := core.ValidatePipelineJob(job); err != nil {
		return nil, err
	}

	var err error
	for attempt := 1; attempt <= versionAttempts; attempt++ {
		var row *pipelineRecord
		row, err = r.insertNext(ctx, fileLocation, status, message)
		if err == nil {
			return row.toJob(), nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		r.logger.Debug("version taken, retrying", "file", fileLocation, "attempt", attempt)
	}
	return nil, fmt.Errorf("%w: %w", storage.ErrDuplicateVersion, err)
}

func (r *Repository) insertNext(ctx context.Context, fileLocation string, status core.JobStatus, message *string) (*pipelineRecord, error) {
	now := time.Now().UTC()
	row := &pipelineRecord{
		FileLocation: fileLocation,
		Status:       int(status),
		Message:      message,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxVersion sql.NullInt64
		err := tx.Model(&pipelineRecord{}).
			Where("file_location = ?", fileLocation).
			Select("MAX(file_version)").
			Row().
			Scan(&maxVersion)
		if err != nil {
			return err
		}
		row.FileVersion = maxVersion.Int64 + 1
		return tx.Create(row).Error
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// UpdateRecord applies a partial update to an existing job.
func (r *Repository) UpdateRecord(ctx context.Context, id core.ID, status *core.JobStatus, message *string) (bool, error) {
	if status != nil {
		if err := core.ValidateJobStatus(*status); err != nil {
			return false, err
		}
	}

	found := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row pipelineRecord
		err := tx.Select("id").First(&row, uint64(id)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		changes := map[string]any{"updated_at": time.Now().UTC()}
		if status != nil {
			changes["status"] = int(*status)
		}
		if message != nil {
			changes["message"] = *message
		}
		return tx.Model(&pipelineRecord{}).Where("id = ?", uint64(id)).Updates(changes).Error
	})
	return found, err
}

// GetRecord retrieves a single job by ID.
func (r *Repository) GetRecord(ctx context.Context, id core.ID) (*core.PipelineJob, error) {
	var row pipelineRecord
	err := r.db.WithContext(ctx).First(&row, uint64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toJob(), nil
}

// LatestRecord returns the highest-version job for a file location.
func (r *Repository) LatestRecord(ctx context.Context, fileLocation string) (*core.PipelineJob, error) {
	var row pipelineRecord
	err := r.db.WithContext(ctx).
		Where("file_location = ?", fileLocation).
		Order("file_version DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toJob(), nil
}

// NextVersion returns the version to use for a fresh submission of fileLocation.
func (r *Repository) NextVersion(ctx context.Context, fileLocation string) (int64, error) {
	var maxVersion sql.NullInt64
	err := r.db.WithContext(ctx).Model(&pipelineRecord{}).
		Where("file_location = ?", fileLocation).
		Select("MAX(file_version)").
		Row().
		Scan(&maxVersion)
	if err != nil {
		return 0, err
	}
	if !maxVersion.Valid {
		return 1, nil
	}
	return maxVersion.Int64 + 1, nil
}

// ListByStatus returns jobs in a status, least recently updated first.
func (r *Repository) ListByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.PipelineJob, error) {
	if err := core.ValidateJobStatus(status); err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Where("status = ?", int(status)).
		Order("updated_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []pipelineRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	jobs := make([]*core.PipelineJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toJob()
	}
	return jobs, nil
}
