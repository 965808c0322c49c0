package events

import (
	"encoding/json"
	"strings"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// ChunkEvent is one unit of work on the stage topics
type ChunkEvent struct {
	// BlobName is container/path of the source blob
	BlobName string `json:"blobName"`
	// StorageAccount names the configured account holding the blob
	StorageAccount string `json:"storageAccount"`
	chunking.Chunk
	// InvocationID is the stage 1 invocation that planned the chunk
	InvocationID string `json:"invocationId,omitempty"`
}

// Container splits BlobName into its container and blob path
func (e ChunkEvent) Container() (container, path string) {
	container, path, _ = strings.Cut(e.BlobName, "/")
	return container, path
}

// Validate checks the invariants every enqueued chunk satisfies
func (e ChunkEvent) Validate() error {
	if e.BlobName == "" {
		return faults.Parse("events.ChunkEvent", "chunk has no blob name")
	}
	if _, path := e.Container(); path == "" {
		return faults.Parse("events.ChunkEvent", "blob name %q has no container prefix", e.BlobName)
	}
	if e.Start < 0 || e.Length <= 0 {
		return faults.Parse("events.ChunkEvent", "invalid range start=%d length=%d", e.Start, e.Length)
	}
	return nil
}

// DecodeChunkEvent parses and validates a stage topic message
func DecodeChunkEvent(data []byte) (ChunkEvent, error) {
	var e ChunkEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ChunkEvent{}, faults.Parse("events.DecodeChunkEvent", "invalid chunk message: %v", err)
	}
	if err := e.Validate(); err != nil {
		return ChunkEvent{}, err
	}
	return e, nil
}
