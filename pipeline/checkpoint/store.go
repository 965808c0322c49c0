// Package checkpoint persists how far stage 1 has read each flow-log blob.
// A checkpoint is the number of leading committed blocks already chunked;
// block 0 is the {"records":[ header, so a blob never read resumes at 1.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
)

// Store reads and replaces checkpoints by partition and row key.
// Implementations: Azure Table (primary), BoltDB (single host), memory.
type Store interface {
	// Get returns the stored index and whether one exists
	Get(ctx context.Context, partitionKey, rowKey string) (int, bool, error)

	// Put replaces the stored index
	Put(ctx context.Context, partitionKey, rowKey string, index int) error

	// Close releases the store
	Close() error
}

// Load returns the checkpoint of a blob, FirstDataBlock when none is stored
func Load(ctx context.Context, store Store, id events.BlobIdentity) (int, error) {
	index, found, err := store.Get(ctx, id.PartitionKey(), id.RowKey())
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint for %s: %w", id, err)
	}
	if !found || index < chunking.FirstDataBlock {
		return chunking.FirstDataBlock, nil
	}
	return index, nil
}

// Save replaces the checkpoint of a blob
func Save(ctx context.Context, store Store, id events.BlobIdentity, index int) error {
	if err := store.Put(ctx, id.PartitionKey(), id.RowKey(), index); err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", id, err)
	}
	return nil
}

// Reset rewinds a blob to its first data block
func Reset(ctx context.Context, store Store, id events.BlobIdentity) error {
	return Save(ctx, store, id, chunking.FirstDataBlock)
}
