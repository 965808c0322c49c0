package service

import (
	"context"
	"fmt"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// Splitter is stage 2: chunks within budget pass through to the transmit
// topic, oversized ones are downloaded and split on record boundaries.
type Splitter struct {
	deps         Dependencies
	topic        string
	maxChunkSize int64
}

// NewSplitter creates the stage 2 handler
func NewSplitter(cfg *config.Config, deps Dependencies) *Splitter {
	return &Splitter{
		deps:         deps,
		topic:        cfg.Kafka.Stage2Topic,
		maxChunkSize: cfg.Chunking.MaxChunkSize,
	}
}

// Handle forwards or splits one chunk
func (s *Splitter) Handle(ctx context.Context, ev events.ChunkEvent) (err error) {
	ctx, inv := startInvocation(ctx, StageSplit, ev.BlobName, s.deps.Metrics)
	defer func() { inv.finish(err) }()

	if !chunking.NeedsSplit(ev.Chunk, s.maxChunkSize) {
		if err := publishChunks(ctx, s.deps.Producer, s.topic, []events.ChunkEvent{ev}); err != nil {
			return err
		}
		s.deps.Metrics.ChunksEmitted(s.topic, 1)
		inv.logger.Debug().Int64("start", ev.Start).Int64("length", ev.Length).Msg("Chunk within budget forwarded")
		return nil
	}

	src, err := s.deps.Sources.Source(ev.StorageAccount)
	if err != nil {
		return err
	}
	container, path := ev.Container()
	content, err := src.ReadRange(ctx, container, path, ev.Start, ev.Length)
	if err != nil {
		return err
	}

	children, err := chunking.Split(ev.Chunk, content, s.maxChunkSize)
	if err != nil {
		return fmt.Errorf("failed to split chunk at %d of %s: %w", ev.Start, ev.BlobName, err)
	}

	out := make([]events.ChunkEvent, len(children))
	for i, child := range children {
		out[i] = ev
		out[i].Chunk = child
	}
	if err := publishChunks(ctx, s.deps.Producer, s.topic, out); err != nil {
		return err
	}
	s.deps.Metrics.ChunkSplit()
	s.deps.Metrics.ChunksEmitted(s.topic, len(out))

	inv.logger.Info().
		Int64("start", ev.Start).
		Int64("length", ev.Length).
		Int("chunks", len(out)).
		Msg("Oversized chunk split")
	return nil
}
