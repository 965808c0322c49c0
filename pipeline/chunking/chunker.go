// Package chunking turns the committed block list of a growing flow-log blob
// into byte-range work units, and splits oversized units at record boundaries.
package chunking

import (
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

const (
	// DefaultMaxChunkSize is the largest range handed to a single downstream invocation
	DefaultMaxChunkSize = 102400

	// MinDataBlockSize is the smallest block treated as record data. The flow-log
	// writer commits short blocks (the closing "]}" and in-progress tails) between
	// records; they never count toward a chunk and close the chunk being built.
	MinDataBlockSize = 10

	// FirstDataBlock is the checkpoint of a blob nothing has been read from.
	// Block 0 holds the {"records":[ header.
	FirstDataBlock = 1
)

// Block is one committed block of a blob
type Block struct {
	Name string
	Size int64
}

// Chunk is a byte range of a blob and the name of the last block it covers
type Chunk struct {
	Start         int64  `json:"start"`
	Length        int64  `json:"length"`
	LastBlockName string `json:"lastBlockName"`
}

// End returns the offset one past the last byte of the chunk
func (c Chunk) End() int64 {
	return c.Start + c.Length
}

// Plan is the outcome of chunking one block list
type Plan struct {
	Chunks []Chunk
	// Checkpoint is the block index the next run resumes from
	Checkpoint int
}

// Advanced reports whether the plan moves the checkpoint past from
func (p Plan) Advanced(from int) bool {
	return len(p.Chunks) > 0 && p.Checkpoint > from
}

// PlanChunks walks the block list once, skipping the blocks before checkpoint
// and grouping the rest into chunks of at most maxChunkSize bytes. A single
// block larger than maxChunkSize becomes a chunk on its own.
func PlanChunks(blocks []Block, checkpoint int, maxChunkSize int64) (Plan, error) {
	if checkpoint < FirstDataBlock {
		checkpoint = FirstDataBlock
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	plan := Plan{Checkpoint: checkpoint}

	var cursor int64
	for i := 0; i < checkpoint && i < len(blocks); i++ {
		cursor += blocks[i].Size
	}

	current := Chunk{Start: cursor}
	lastDataBlock := -1

	closeCurrent := func() {
		plan.Chunks = append(plan.Chunks, current)
		plan.Checkpoint = lastDataBlock + 1
	}

	for i := checkpoint; i < len(blocks); i++ {
		b := blocks[i]

		if b.Size < MinDataBlockSize {
			if current.Length > 0 {
				closeCurrent()
			}
			cursor += b.Size
			current = Chunk{Start: cursor}
			continue
		}

		if current.Length > 0 && current.Length+b.Size > maxChunkSize {
			closeCurrent()
			current = Chunk{Start: cursor}
		}

		current.Length += b.Size
		current.LastBlockName = b.Name
		lastDataBlock = i
		cursor += b.Size
	}

	if current.Length > 0 {
		closeCurrent()
	}

	for _, c := range plan.Chunks {
		if c.Length <= 0 {
			return Plan{}, faults.ChunkingInvariant("chunking.plan",
				"computed chunk at offset %d with length %d (last block %q)", c.Start, c.Length, c.LastBlockName)
		}
	}

	return plan, nil
}
