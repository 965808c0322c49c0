package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/checkpoint"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
)

// RescanMetadataKey counts the rescans requested for a blob
const RescanMetadataKey = "rescan"

// Rescanner rewinds a blob to its first data block so its records are sent again
type Rescanner struct {
	sources     ingestion.BlobSourceFactory
	checkpoints checkpoint.Store
	runner      BlobRunner
	account     string
	container   string
}

// NewRescanner creates a rescanner; a non-nil runner chunks the blob right away
func NewRescanner(cfg *config.Config, sources ingestion.BlobSourceFactory, checkpoints checkpoint.Store, runner BlobRunner) *Rescanner {
	return &Rescanner{
		sources:     sources,
		checkpoints: checkpoints,
		runner:      runner,
		account:     cfg.Source.Account,
		container:   cfg.Source.Container,
	}
}

// Rescan resets the checkpoint, bumps the blob's rescan counter and
// returns a confirmation message
func (r *Rescanner) Rescan(ctx context.Context, blobPath string) (string, error) {
	id, err := events.ParseBlobPath(blobPath)
	if err != nil {
		return "", err
	}

	if err := checkpoint.Reset(ctx, r.checkpoints, id); err != nil {
		return "", err
	}

	src, err := r.sources.Source(r.account)
	if err != nil {
		return "", err
	}
	metadata, err := src.Metadata(ctx, r.container, blobPath)
	if err != nil {
		return "", err
	}

	count := 1
	if v := lookupMetadata(metadata, RescanMetadataKey); v != nil {
		if n, err := strconv.Atoi(*v); err == nil {
			count = n + 1
		}
	}
	updated := make(map[string]*string, len(metadata)+1)
	for k, v := range metadata {
		if !strings.EqualFold(k, RescanMetadataKey) {
			updated[k] = v
		}
	}
	value := strconv.Itoa(count)
	updated[RescanMetadataKey] = &value

	if err := src.SetMetadata(ctx, r.container, blobPath, updated); err != nil {
		return "", err
	}

	log.Info().Str("blob", blobPath).Int("rescan", count).Msg("Checkpoint reset for rescan")

	if r.runner != nil {
		if _, err := r.runner.Run(ctx, blobPath); err != nil {
			return "", fmt.Errorf("rescan of %s reset but chunking failed: %w", blobPath, err)
		}
	}

	return fmt.Sprintf("NSG flow logs for %s were requested.", blobPath), nil
}

// lookupMetadata finds a key regardless of the casing the service returned
func lookupMetadata(metadata map[string]*string, key string) *string {
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}
