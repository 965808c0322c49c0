// Package audit mirrors pipeline traffic into a blob container for later inspection.
package audit

import (
	"context"
	"fmt"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// Blob name prefixes per mirrored stream
const (
	PrefixIncoming    = "incoming"
	PrefixOutgoing    = "outgoing"
	PrefixErrorRecord = "errorrecord"
)

// Uploader stores one blob
type Uploader interface {
	Upload(ctx context.Context, container, name string, data []byte) error
}

// Auditor writes mirrored payloads as {prefix}/{uuid}. A nil Auditor
// mirrors nothing.
type Auditor struct {
	uploader  Uploader
	container string
	settings  config.AuditConfig
	newID     func() string
}

// New creates an auditor for the enabled streams
func New(uploader Uploader, settings config.AuditConfig) *Auditor {
	return &Auditor{
		uploader:  uploader,
		container: settings.Container,
		settings:  settings,
		newID:     uuid.NewString,
	}
}

// Incoming mirrors an inbound chunk document
func (a *Auditor) Incoming(ctx context.Context, data []byte) {
	if a == nil || !a.settings.LogIncomingJSON {
		return
	}
	a.write(ctx, PrefixIncoming, data)
}

// Outgoing mirrors a payload handed to the sink
func (a *Auditor) Outgoing(ctx context.Context, data []byte) {
	if a == nil || !a.settings.LogOutgoing {
		return
	}
	a.write(ctx, PrefixOutgoing, data)
}

// ErrorRecord mirrors input that failed to parse or render
func (a *Auditor) ErrorRecord(ctx context.Context, data []byte) {
	if a == nil || !a.settings.LogErrorRecords {
		return
	}
	a.write(ctx, PrefixErrorRecord, data)
}

// write never fails the caller; a lost audit blob is only logged
func (a *Auditor) write(ctx context.Context, prefix string, data []byte) {
	name := path.Join(prefix, a.newID())
	if err := a.uploader.Upload(ctx, a.container, name, data); err != nil {
		log.Warn().
			Err(err).
			Str("container", a.container).
			Str("blob", name).
			Msg("Failed to write audit blob")
		return
	}
	log.Debug().Str("blob", name).Int("bytes", len(data)).Msg("Audit blob written")
}

// BlobUploader uploads audit blobs with azblob
type BlobUploader struct {
	client *azblob.Client
}

// NewBlobUploader wraps an azblob client
func NewBlobUploader(client *azblob.Client) *BlobUploader {
	return &BlobUploader{client: client}
}

// EnsureContainer creates the audit container when missing
func (u *BlobUploader) EnsureContainer(ctx context.Context, container string) error {
	_, err := u.client.CreateContainer(ctx, container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create audit container %s: %w", container, err)
	}
	return nil
}

// Upload writes data as a block blob
func (u *BlobUploader) Upload(ctx context.Context, container, name string, data []byte) error {
	if _, err := u.client.UploadBuffer(ctx, container, name, data, nil); err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", container, name, err)
	}
	return nil
}
