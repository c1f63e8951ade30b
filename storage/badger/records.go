package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docingest/core"
	"github.com/poiesic/docingest/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
//
// Layout:
//   - pjob:<id>                      -> serialized PipelineJob
//   - pjobv:<location>\x00<version>  -> id (unique constraint)
//   - pjobs:<status><updatedAt><id>  -> id (monitoring index)
type RecordRepository struct {
	backend *Backend
	idSeq   *badger.Sequence

	// versionMu serializes version allocation within the process; the
	// transaction still detects conflicts with plain CreateRecord calls.
	versionMu sync.Mutex
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) (*RecordRepository, error) {
	idSeq, err := backend.GetSequence(jobIDSeq)
	if err != nil {
		return nil, err
	}

	return &RecordRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *RecordRepository) Close() error {
	return r.idSeq.Release()
}

func (r *RecordRepository) nextID() (core.ID, error) {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		nextID, err = r.idSeq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// CreateRecord inserts a new pipeline job.
func (r *RecordRepository) CreateRecord(ctx context.Context, fileLocation string, fileVersion int64, status core.JobStatus, message *string) (core.ID, error) {
	job := &core.PipelineJob{
		FileLocation: fileLocation,
		FileVersion:  fileVersion,
		Status:       status,
		Message:      message,
	}
	if err := core.ValidatePipelineJob(job); err != nil {
		return 0, err
	}

	err := r.backend.WithRetryingTx(func(tx *badger.Txn) error {
		if err := r.insert(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return job.Id, nil
}

// CreateNextRecord inserts a job one version past the latest for fileLocation.
func (r *RecordRepository) CreateNextRecord(ctx context.Context, fileLocation string, status core.JobStatus, message *string) (*core.PipelineJob, error) {
	job := &core.PipelineJob{
		FileLocation: fileLocation,
		FileVersion:  1,
		Status:       status,
		Message:      message,
	}
	if err := core.ValidatePipelineJob(job); err != nil {
		return nil, err
	}

	r.versionMu.Lock()
	defer r.versionMu.Unlock()

	err := r.backend.WithRetryingTx(func(tx *badger.Txn) error {
		latest, err := r.latestVersion(tx, fileLocation)
		if err != nil {
			return err
		}
		job.FileVersion = latest + 1
		if err := r.insert(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// insert writes job and its index entries, assigning ID and timestamps.
func (r *RecordRepository) insert(tx *badger.Txn, job *core.PipelineJob) error {
	versionKey := makeVersionKey(job.FileLocation, job.FileVersion)
	if _, err := tx.Get(versionKey); err == nil {
		return storage.ErrDuplicateVersion
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	id, err := r.nextID()
	if err != nil {
		return err
	}
	job.Id = id
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt

	if err := tx.Set(makeJobKey(job.Id), storage.MarshalPipelineJob(job)); err != nil {
		return err
	}
	if err := tx.Set(versionKey, storage.MarshalID(job.Id)); err != nil {
		return err
	}
	return tx.Set(makeStatusKey(job.Status, job.UpdatedAt, job.Id), storage.MarshalID(job.Id))
}

// UpdateRecord applies a partial update to an existing job.
func (r *RecordRepository) UpdateRecord(ctx context.Context, id core.ID, status *core.JobStatus, message *string) (bool, error) {
	if status != nil {
		if err := core.ValidateJobStatus(*status); err != nil {
			return false, err
		}
	}

	found := false
	err := r.backend.WithRetryingTx(func(tx *badger.Txn) error {
		key := makeJobKey(id)
		old, err := r.readJob(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			found = false
			return nil
		}
		found = true

		updated := *old
		if status != nil {
			updated.Status = *status
		}
		if message != nil {
			msg := *message
			updated.Message = &msg
		}
		updated.UpdatedAt = time.Now().UTC()

		if err := tx.Delete(makeStatusKey(old.Status, old.UpdatedAt, old.Id)); err != nil {
			return err
		}
		if err := tx.Set(key, storage.MarshalPipelineJob(&updated)); err != nil {
			return err
		}
		if err := tx.Set(makeStatusKey(updated.Status, updated.UpdatedAt, updated.Id), storage.MarshalID(updated.Id)); err != nil {
			return err
		}
		return tx.Commit()
	})
	return found, err
}

// GetRecord retrieves a single job by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.ID) (*core.PipelineJob, error) {
	var result *core.PipelineJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// LatestRecord returns the highest-version job for a file location.
func (r *RecordRepository) LatestRecord(ctx context.Context, fileLocation string) (*core.PipelineJob, error) {
	var result *core.PipelineJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := r.latestID(tx, fileLocation)
		if err != nil {
			return err
		}
		if id == 0 {
			return storage.ErrNotFound
		}

		result, err = r.readJob(tx, makeJobKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// NextVersion returns the version to use for a fresh submission of fileLocation.
func (r *RecordRepository) NextVersion(ctx context.Context, fileLocation string) (int64, error) {
	var latest int64
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		latest, err = r.latestVersion(tx, fileLocation)
		return err
	}, false)
	if err != nil {
		return 0, err
	}
	return latest + 1, nil
}

// latestID returns the ID stored under the highest version key of
// fileLocation, or 0 when there is none.
func (r *RecordRepository) latestID(tx *badger.Txn, fileLocation string) (core.ID, error) {
	key, err := r.latestVersionKey(tx, fileLocation)
	if err != nil || key == nil {
		return 0, err
	}
	item, err := tx.Get(key)
	if err != nil {
		return 0, err
	}

	var id core.ID
	err = item.Value(func(val []byte) error {
		var err error
		id, err = storage.UnmarshalID(val)
		return err
	})
	return id, err
}

// latestVersion returns the highest version of fileLocation, 0 if unseen.
func (r *RecordRepository) latestVersion(tx *badger.Txn, fileLocation string) (int64, error) {
	key, err := r.latestVersionKey(tx, fileLocation)
	if err != nil || key == nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(key[len(key)-8:])), nil
}

func (r *RecordRepository) latestVersionKey(tx *badger.Txn, fileLocation string) ([]byte, error) {
	prefix := makePartialVersionKey(fileLocation)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = true
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	// Reverse iteration must start past the last possible version suffix
	seekKey := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	iter.Seek(seekKey)
	if !iter.ValidForPrefix(prefix) {
		return nil, nil
	}
	key := iter.Item().KeyCopy(nil)
	if len(key) != len(prefix)+8 {
		return nil, fmt.Errorf("malformed version key for %q", fileLocation)
	}
	return key, nil
}

// ListByStatus returns jobs in a status, least recently updated first.
func (r *RecordRepository) ListByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.PipelineJob, error) {
	if err := core.ValidateJobStatus(status); err != nil {
		return nil, err
	}

	var results []*core.PipelineJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialStatusKey(status)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}

			var id core.ID
			err := iter.Item().Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			})
			if err != nil {
				return err
			}

			job, err := r.readJob(tx, makeJobKey(id))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// readJob reads a job inside a transaction. Returns nil, nil when absent.
func (r *RecordRepository) readJob(tx *badger.Txn, key []byte) (*core.PipelineJob, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var job *core.PipelineJob
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalPipelineJob(val)
		return unmarshalErr
	})
	return job, err
}
