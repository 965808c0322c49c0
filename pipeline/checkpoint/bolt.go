package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const bucketName = "checkpoints"

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the checkpoint database at dbPath
func NewBoltStore(dbPath string) (*BoltStore, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB checkpoint store initialized")

	return &BoltStore{db: db}, nil
}

// Get retrieves the checkpoint for a blob
func (s *BoltStore) Get(ctx context.Context, partitionKey, rowKey string) (int, bool, error) {
	var (
		index int
		found bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get(makeKey(partitionKey, rowKey))
		if val == nil {
			return nil
		}
		if len(val) < 8 {
			return fmt.Errorf("invalid checkpoint value")
		}

		index = int(binary.BigEndian.Uint64(val))
		found = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	return index, found, nil
}

// Put stores the checkpoint for a blob
func (s *BoltStore) Put(ctx context.Context, partitionKey, rowKey string, index int) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, uint64(index))
		return b.Put(makeKey(partitionKey, rowKey), val)
	})
	if err != nil {
		return fmt.Errorf("failed to put checkpoint: %w", err)
	}

	log.Debug().
		Str("partition_key", partitionKey).
		Str("row_key", rowKey).
		Int("checkpoint", index).
		Msg("Checkpoint updated")

	return nil
}

// Close closes the BoltDB database
func (s *BoltStore) Close() error {
	log.Info().Msg("Closing BoltDB checkpoint store")
	return s.db.Close()
}

// makeKey creates a composite key from partition and row key
func makeKey(partitionKey, rowKey string) []byte {
	return []byte(partitionKey + "/" + rowKey)
}
