package service

import (
	"context"
	"fmt"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/checkpoint"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// ChunkResult summarizes one stage 1 invocation
type ChunkResult struct {
	InvocationID string
	Chunks       int
	From         int
	Checkpoint   int
}

// Chunker is stage 1: it plans chunks over the blocks committed since the
// blob's checkpoint, publishes them and then advances the checkpoint.
type Chunker struct {
	deps         Dependencies
	account      string
	container    string
	topic        string
	maxChunkSize int64
}

// NewChunker creates the stage 1 handler for the configured source
func NewChunker(cfg *config.Config, deps Dependencies) *Chunker {
	return &Chunker{
		deps:         deps,
		account:      cfg.Source.Account,
		container:    cfg.Source.Container,
		topic:        cfg.Kafka.Stage1Topic,
		maxChunkSize: cfg.Chunking.MaxChunkSize,
	}
}

// Run chunks one blob of the source container. The checkpoint moves only
// after every chunk was acknowledged by the broker.
func (c *Chunker) Run(ctx context.Context, blobPath string) (result *ChunkResult, err error) {
	ctx, inv := startInvocation(ctx, StageChunk, blobPath, c.deps.Metrics)
	defer func() { inv.finish(err) }()

	id, err := events.ParseBlobPath(blobPath)
	if err != nil {
		return nil, err
	}

	src, err := c.deps.Sources.Source(c.account)
	if err != nil {
		return nil, err
	}

	blocks, err := src.ListCommittedBlocks(ctx, c.container, blobPath)
	if err != nil {
		return nil, err
	}

	from, err := checkpoint.Load(ctx, c.deps.Checkpoints, id)
	if err != nil {
		return nil, err
	}

	plan, err := chunking.PlanChunks(blocks, from, c.maxChunkSize)
	if err != nil {
		return nil, err
	}

	result = &ChunkResult{InvocationID: inv.id, From: from, Checkpoint: from, Chunks: len(plan.Chunks)}
	if len(plan.Chunks) == 0 {
		inv.logger.Debug().Int("blocks", len(blocks)).Int("checkpoint", from).Msg("No new data blocks")
		return result, nil
	}

	evs := make([]events.ChunkEvent, len(plan.Chunks))
	for i, chunk := range plan.Chunks {
		evs[i] = events.ChunkEvent{
			BlobName:       c.container + "/" + blobPath,
			StorageAccount: c.account,
			Chunk:          chunk,
			InvocationID:   inv.id,
		}
	}

	if err := publishChunks(ctx, c.deps.Producer, c.topic, evs); err != nil {
		return nil, fmt.Errorf("failed to publish chunks of %s: %w", id, err)
	}
	c.deps.Metrics.ChunksEmitted(c.topic, len(evs))

	if plan.Advanced(from) {
		if err := checkpoint.Save(ctx, c.deps.Checkpoints, id, plan.Checkpoint); err != nil {
			return nil, err
		}
		result.Checkpoint = plan.Checkpoint
	}

	inv.logger.Info().
		Int("blocks", len(blocks)).
		Int("chunks", len(evs)).
		Int("from", from).
		Int("checkpoint", result.Checkpoint).
		Msg("Chunks published")
	return result, nil
}
