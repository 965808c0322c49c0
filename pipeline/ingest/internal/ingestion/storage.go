package ingestion

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// NewAzureClient creates a blob service client for a configured account
func NewAzureClient(account config.StorageAccount) (*azblob.Client, error) {
	if account.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(account.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Blob client from connection string: %w", err)
		}
		return client, nil
	}

	cred, err := azblob.NewSharedKeyCredential(account.AccountName, account.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(account.BlobURL(), cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}
	return client, nil
}

// azureSourceFactory implements BlobSourceFactory, one client per account
type azureSourceFactory struct {
	storageConfig *config.Config

	mu      sync.Mutex
	sources map[string]BlobSource
}

// NewAzureSourceFactory creates a new Azure blob source factory
func NewAzureSourceFactory(storageConfig *config.Config) BlobSourceFactory {
	return &azureSourceFactory{
		storageConfig: storageConfig,
		sources:       make(map[string]BlobSource),
	}
}

// Source returns the cached source of the named account
func (f *azureSourceFactory) Source(account string) (BlobSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if src, ok := f.sources[account]; ok {
		return src, nil
	}

	storageAccount, err := f.storageConfig.GetStorageAccount(account)
	if err != nil {
		return nil, faults.Configuration("ingestion.Source", "failed to get storage account: %w", err)
	}

	client, err := NewAzureClient(storageAccount)
	if err != nil {
		return nil, faults.Configuration("ingestion.Source", "storage account %s: %w", account, err)
	}

	src := &AzureBlobSource{client: client}
	f.sources[account] = src
	return src, nil
}

// AzureBlobSource implements BlobSource on an azblob client
type AzureBlobSource struct {
	client *azblob.Client
}

// NewAzureBlobSource wraps an existing client
func NewAzureBlobSource(client *azblob.Client) *AzureBlobSource {
	return &AzureBlobSource{client: client}
}

func (s *AzureBlobSource) blockBlob(containerName, blobPath string) *blockblob.Client {
	return s.client.ServiceClient().NewContainerClient(containerName).NewBlockBlobClient(blobPath)
}

// ListCommittedBlocks downloads the committed block list
func (s *AzureBlobSource) ListCommittedBlocks(ctx context.Context, containerName, blobPath string) ([]chunking.Block, error) {
	resp, err := s.blockBlob(containerName, blobPath).GetBlockList(ctx, blockblob.BlockListTypeCommitted, nil)
	if err != nil {
		return nil, faults.Transport("ingestion.ListCommittedBlocks", "failed to get block list for %s/%s: %w", containerName, blobPath, err)
	}

	blocks := make([]chunking.Block, 0, len(resp.CommittedBlocks))
	for _, b := range resp.CommittedBlocks {
		var block chunking.Block
		if b.Name != nil {
			block.Name = *b.Name
		}
		if b.Size != nil {
			block.Size = *b.Size
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// ReadRange downloads one byte range
func (s *AzureBlobSource) ReadRange(ctx context.Context, containerName, blobPath string, start, length int64) ([]byte, error) {
	resp, err := s.blockBlob(containerName, blobPath).DownloadStream(ctx, &blob.DownloadStreamOptions{
		Range: blob.HTTPRange{Offset: start, Count: length},
	})
	if err != nil {
		return nil, faults.Transport("ingestion.ReadRange", "failed to download %s/%s: %w", containerName, blobPath, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Transport("ingestion.ReadRange", "failed to read %s/%s: %w", containerName, blobPath, err)
	}
	if int64(len(data)) != length {
		return nil, faults.Transport("ingestion.ReadRange", "short read of %s/%s: got %d of %d bytes at %d", containerName, blobPath, len(data), length, start)
	}
	return data, nil
}

// Metadata reads the blob's user metadata
func (s *AzureBlobSource) Metadata(ctx context.Context, containerName, blobPath string) (map[string]*string, error) {
	props, err := s.blockBlob(containerName, blobPath).GetProperties(ctx, nil)
	if err != nil {
		return nil, faults.Transport("ingestion.Metadata", "failed to get properties of %s/%s: %w", containerName, blobPath, err)
	}
	if props.Metadata == nil {
		return map[string]*string{}, nil
	}
	return props.Metadata, nil
}

// SetMetadata replaces the blob's user metadata
func (s *AzureBlobSource) SetMetadata(ctx context.Context, containerName, blobPath string, metadata map[string]*string) error {
	if _, err := s.blockBlob(containerName, blobPath).SetMetadata(ctx, metadata, nil); err != nil {
		return faults.Transport("ingestion.SetMetadata", "failed to set metadata of %s/%s: %w", containerName, blobPath, err)
	}
	return nil
}

// ListBlobs pages through the blobs under prefix
func (s *AzureBlobSource) ListBlobs(ctx context.Context, containerName, prefix string) ([]BlobItem, error) {
	opts := &container.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	pager := s.client.ServiceClient().NewContainerClient(containerName).NewListBlobsFlatPager(opts)

	var items []BlobItem
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, faults.Transport("ingestion.ListBlobs", "failed to list %s: %w", containerName, err)
		}
		for _, b := range page.Segment.BlobItems {
			if b.Name == nil {
				continue
			}
			item := BlobItem{Name: *b.Name}
			if b.Properties != nil {
				if b.Properties.ContentLength != nil {
					item.Size = *b.Properties.ContentLength
				}
				if b.Properties.LastModified != nil {
					item.LastModified = *b.Properties.LastModified
				}
			}
			items = append(items, item)
		}
	}
	return items, nil
}
