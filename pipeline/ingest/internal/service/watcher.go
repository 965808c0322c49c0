package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/filters"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
)

// FlowLogBlobSuffix is the name of every hourly flow-log blob
const FlowLogBlobSuffix = "PT1H.json"

// BlobRunner runs stage 1 for one blob path
type BlobRunner interface {
	Run(ctx context.Context, blobPath string) (*ChunkResult, error)
}

// Watcher polls the source container and runs stage 1 for every flow-log
// blob that grew since the previous pass.
type Watcher struct {
	sources   ingestion.BlobSourceFactory
	runner    BlobRunner
	filter    *filters.BlobFilter
	sharding  *config.ShardingConfig
	account   string
	container string
	prefix    string
	interval  time.Duration

	// sizes holds the last size chunked per blob; only the poll loop touches it
	sizes map[string]int64
}

// NewWatcher creates a watcher for the configured source
func NewWatcher(cfg *config.Config, sources ingestion.BlobSourceFactory, runner BlobRunner) (*Watcher, error) {
	filter, err := filters.NewBlobFilter(&cfg.Watch.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob filter: %w", err)
	}

	var sharding *config.ShardingConfig
	if cfg.Watch.Sharding.Enabled {
		sharding = &cfg.Watch.Sharding
	}

	return &Watcher{
		sources:   sources,
		runner:    runner,
		filter:    filter,
		sharding:  sharding,
		account:   cfg.Source.Account,
		container: cfg.Source.Container,
		prefix:    cfg.Watch.Prefix,
		interval:  cfg.Watch.Interval,
		sizes:     make(map[string]int64),
	}, nil
}

// Start polls until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	log.Info().
		Str("container", w.container).
		Str("prefix", w.prefix).
		Dur("interval", w.interval).
		Msg("Starting blob watcher")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil {
			log.Error().Err(err).Msg("Watch pass failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping blob watcher")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll makes one pass over the container and returns how many blobs were chunked
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	src, err := w.sources.Source(w.account)
	if err != nil {
		return 0, err
	}

	items, err := src.ListBlobs(ctx, w.container, w.prefix)
	if err != nil {
		return 0, err
	}

	triggered := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return triggered, ctx.Err()
		}
		if !strings.HasSuffix(item.Name, FlowLogBlobSuffix) {
			continue
		}
		if last, seen := w.sizes[item.Name]; seen && last == item.Size {
			continue
		}

		id, err := events.ParseBlobPath(item.Name)
		if err != nil {
			log.Debug().Err(err).Str("blob", item.Name).Msg("Skipping blob outside the flow-log layout")
			continue
		}
		if !w.filter.ShouldProcess(id, item.Name, w.sharding) {
			continue
		}

		if _, err := w.runner.Run(ctx, item.Name); err != nil {
			// size is not recorded so the next pass retries the blob
			log.Warn().Err(err).Str("blob", item.Name).Msg("Stage 1 failed, retrying on next pass")
			continue
		}
		w.sizes[item.Name] = item.Size
		triggered++
	}

	log.Debug().Int("blobs", len(items)).Int("triggered", triggered).Msg("Watch pass complete")
	return triggered, nil
}
