package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const (
	checkpointsBucket = "checkpoints"
	metadataBucket    = "metadata"
	schemaVersion     = 1
)

var (
	// ErrCheckpointNotFound is returned when a checkpoint cannot be found
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

var _ Repository = (*BboltRepository)(nil)

// BboltRepository implements Repository on a bbolt file
type BboltRepository struct {
	db *bbolt.DB
}

// NewBboltRepository creates a new bbolt repository
func NewBboltRepository(dbPath string) (*BboltRepository, error) {
	options := &bbolt.Options{
		Timeout: 1 * time.Second,
	}

	db, err := bbolt.Open(dbPath, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &BboltRepository{
		db: db,
	}

	if err := repo.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// initialize sets up buckets and schema
func (r *BboltRepository) initialize() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(checkpointsBucket))
		if err != nil {
			return fmt.Errorf("failed to create checkpoints bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return fmt.Errorf("failed to create metadata bucket: %w", err)
		}

		err = meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
		if err != nil {
			return fmt.Errorf("failed to store schema version: %w", err)
		}

		return nil
	})
}

// Save persists a checkpoint and stamps UpdatedAt
func (r *BboltRepository) Save(cp *Checkpoint) error {
	if cp == nil {
		return errors.New("cannot save nil checkpoint")
	}
	if cp.ID == uuid.Nil {
		return errors.New("checkpoint ID cannot be empty")
	}

	cp.UpdatedAt = time.Now()

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", checkpointsBucket)
		}

		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}

		if err := bucket.Put([]byte(cp.ID.String()), data); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}

		return nil
	})
}

// Find retrieves a checkpoint by ID
func (r *BboltRepository) Find(id uuid.UUID) (*Checkpoint, error) {
	if id == uuid.Nil {
		return nil, errors.New("checkpoint ID cannot be empty")
	}

	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", checkpointsBucket)
		}

		// bbolt values are only valid inside the transaction
		v := bucket.Get([]byte(id.String()))
		if v == nil {
			return ErrCheckpointNotFound
		}
		data = append([]byte(nil), v...)

		return nil
	})
	if err != nil {
		return nil, err
	}

	cp := &Checkpoint{}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return cp, nil
}

// FindByURL returns the most recently updated checkpoint downloading url into output
func (r *BboltRepository) FindByURL(url, output string) (*Checkpoint, error) {
	all, err := r.FindAll()
	if err != nil {
		return nil, err
	}

	for _, cp := range all {
		if cp.URL == url && cp.Output == output {
			return cp, nil
		}
	}

	return nil, ErrCheckpointNotFound
}

// FindAll retrieves all checkpoints, most recently updated first
func (r *BboltRepository) FindAll() ([]*Checkpoint, error) {
	var checkpoints []*Checkpoint

	err := r.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", checkpointsBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			cp := &Checkpoint{}
			if err := json.Unmarshal(v, cp); err != nil {
				return fmt.Errorf("failed to unmarshal checkpoint %s: %w", k, err)
			}

			checkpoints = append(checkpoints, cp)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(checkpoints, func(i, j int) bool {
		return checkpoints[i].UpdatedAt.After(checkpoints[j].UpdatedAt)
	})

	return checkpoints, nil
}

// Delete removes a checkpoint
func (r *BboltRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("checkpoint ID cannot be empty")
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(checkpointsBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", checkpointsBucket)
		}

		if bucket.Get([]byte(id.String())) == nil {
			return ErrCheckpointNotFound
		}

		return bucket.Delete([]byte(id.String()))
	})
}

// Close closes the database
func (r *BboltRepository) Close() error {
	return r.db.Close()
}
