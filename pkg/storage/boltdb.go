package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fableworks/taskcore/pkg/types"
)

var (
	// Bucket names
	bucketTasks = []byte("tasks")
)

// BoltStore implements Store using BoltDB. Bolt serializes write
// transactions, so the version check and the write inside one Update call
// are atomic with no extra locking.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "taskcore.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketTasks); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketTasks, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Create persists a new QUEUED record
func (s *BoltStore) Create(rec *types.TaskRecord) error {
	if rec.Status == "" {
		rec.Status = types.StatusQueued
	}
	now := time.Now()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		if b.Get([]byte(rec.ID)) != nil {
			return fmt.Errorf("task already exists: %s", rec.ID)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

// Get returns a copy of the record
func (s *BoltStore) Get(id string) (*types.TaskRecord, error) {
	var rec types.TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// update is the single conditional write path every mutation funnels
// through: load, check version, check transition, mutate, bump version,
// store. All inside one write transaction.
func (s *BoltStore) update(id string, expectedVersion uint64, newStatus types.TaskStatus, mutate func(*types.TaskRecord)) (*types.TaskRecord, error) {
	var rec types.TaskRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Version != expectedVersion {
			return fmt.Errorf("%w: %s expected %d, have %d", ErrVersionMismatch, id, expectedVersion, rec.Version)
		}
		if newStatus != rec.Status && !types.CanTransition(rec.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, newStatus)
		}
		rec.Status = newStatus
		if mutate != nil {
			mutate(&rec)
		}
		rec.Version++
		rec.UpdatedAt = time.Now()

		out, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CompareAndSwapStatus atomically applies a version-checked status change
func (s *BoltStore) CompareAndSwapStatus(id string, expectedVersion uint64, newStatus types.TaskStatus, mutate func(*types.TaskRecord)) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, newStatus, mutate)
}

// RecordProgress merges progress data without changing status
func (s *BoltStore) RecordProgress(id string, expectedVersion uint64, progress json.RawMessage) (*types.TaskRecord, error) {
	var rec types.TaskRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Version != expectedVersion {
			return fmt.Errorf("%w: %s expected %d, have %d", ErrVersionMismatch, id, expectedVersion, rec.Version)
		}
		if rec.Status.Terminal() {
			return fmt.Errorf("%w: progress on terminal status %s", ErrInvalidTransition, rec.Status)
		}
		merged, err := mergeJSON(rec.Progress, progress)
		if err != nil {
			return fmt.Errorf("failed to merge progress: %w", err)
		}
		rec.Progress = merged
		rec.Version++
		rec.UpdatedAt = time.Now()

		out, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordCompletion moves RUNNING -> COMPLETED
func (s *BoltStore) RecordCompletion(id string, expectedVersion uint64, result json.RawMessage) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusCompleted, func(rec *types.TaskRecord) {
		rec.Result = result
		rec.ErrorInfo = nil
	})
}

// RecordCompletionWithErrors moves RUNNING -> COMPLETED_WITH_ERRORS
func (s *BoltStore) RecordCompletionWithErrors(id string, expectedVersion uint64, result json.RawMessage, errInfo *types.ErrorInfo) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusCompletedWithErrors, func(rec *types.TaskRecord) {
		rec.Result = result
		rec.ErrorInfo = errInfo
	})
}

// RecordFailure moves RUNNING -> FAILED
func (s *BoltStore) RecordFailure(id string, expectedVersion uint64, errInfo *types.ErrorInfo) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusFailed, func(rec *types.TaskRecord) {
		rec.ErrorInfo = errInfo
	})
}

// RecordRetrying moves RUNNING -> RETRYING and schedules the next attempt
func (s *BoltStore) RecordRetrying(id string, expectedVersion uint64, errInfo *types.ErrorInfo, nextAttemptAt time.Time) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusRetrying, func(rec *types.TaskRecord) {
		rec.ErrorInfo = errInfo
		rec.RetryCount++
		rec.NextAttemptAt = nextAttemptAt
		rec.ExecutionNodeID = ""
	})
}

// RecordDeadLetter moves the record to DEAD_LETTER
func (s *BoltStore) RecordDeadLetter(id string, expectedVersion uint64, errInfo *types.ErrorInfo) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusDeadLetter, func(rec *types.TaskRecord) {
		rec.ErrorInfo = errInfo
		rec.ExecutionNodeID = ""
	})
}

// RecordCancellation moves QUEUED or RUNNING to CANCELLED
func (s *BoltStore) RecordCancellation(id string, expectedVersion uint64) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusCancelled, func(rec *types.TaskRecord) {
		rec.ErrorInfo = types.NewErrorInfo(types.ErrorClassCancelled, "cancelled by request")
		rec.ExecutionNodeID = ""
	})
}

// RequeueForRetry moves RETRYING -> QUEUED for re-dispatch
func (s *BoltStore) RequeueForRetry(id string, expectedVersion uint64) (*types.TaskRecord, error) {
	return s.update(id, expectedVersion, types.StatusQueued, func(rec *types.TaskRecord) {
		rec.NextAttemptAt = time.Time{}
	})
}

// BumpSubTaskSummary shifts one child between status buckets on the parent.
// Runs unconditionally inside its own transaction: bolt serializes writers,
// so there is no version race to lose. The summary is the one field outside
// the version fence - bumping the version here would invalidate the parent
// executor's tracked version on every child transition and its terminal
// write would never land.
func (s *BoltStore) BumpSubTaskSummary(parentID string, from, to types.TaskStatus) (*types.TaskRecord, error) {
	var rec types.TaskRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(parentID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, parentID)
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.SubTaskSummary == nil {
			rec.SubTaskSummary = make(map[types.TaskStatus]int)
		}
		if from != "" && rec.SubTaskSummary[from] > 0 {
			rec.SubTaskSummary[from]--
			if rec.SubTaskSummary[from] == 0 {
				delete(rec.SubTaskSummary, from)
			}
		}
		if to != "" {
			rec.SubTaskSummary[to]++
		}
		rec.UpdatedAt = time.Now()

		out, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(parentID), out)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByStatus returns all records in the given status
func (s *BoltStore) ListByStatus(status types.TaskStatus) ([]*types.TaskRecord, error) {
	var records []*types.TaskRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var rec types.TaskRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status == status {
				records = append(records, &rec)
			}
			return nil
		})
	})
	return records, err
}

// mergeJSON shallow-merges the incoming JSON object over the existing one.
// Non-object payloads replace the previous value wholesale.
func mergeJSON(existing, incoming json.RawMessage) (json.RawMessage, error) {
	if len(existing) == 0 {
		return incoming, nil
	}
	var base, patch map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		return incoming, nil
	}
	if err := json.Unmarshal(incoming, &patch); err != nil {
		return incoming, nil
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}
