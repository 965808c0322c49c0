package ingestion

import (
	"context"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
)

// Producer interface abstracts Kafka producer
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Close()
}

// Consumer interface abstracts Kafka consumer
type Consumer interface {
	Subscribe(topics []string, rebalanceCb kafka.RebalanceCb) error
	Poll(timeoutMs int) kafka.Event
	CommitMessage(msg *kafka.Message) ([]kafka.TopicPartition, error)
	Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error
	Close() error
}

// BlobSource abstracts the flow-log blob operations of one storage account
type BlobSource interface {
	// ListCommittedBlocks returns the committed block list in blob order
	ListCommittedBlocks(ctx context.Context, container, blobPath string) ([]chunking.Block, error)

	// ReadRange downloads exactly length bytes starting at start
	ReadRange(ctx context.Context, container, blobPath string, start, length int64) ([]byte, error)

	// Metadata returns the user metadata of the blob
	Metadata(ctx context.Context, container, blobPath string) (map[string]*string, error)

	// SetMetadata replaces the user metadata of the blob
	SetMetadata(ctx context.Context, container, blobPath string, metadata map[string]*string) error

	// ListBlobs returns the blobs under prefix
	ListBlobs(ctx context.Context, container, prefix string) ([]BlobItem, error)
}

// BlobSourceFactory resolves storage account references to blob sources
type BlobSourceFactory interface {
	Source(account string) (BlobSource, error)
}

// BlobItem is one listed blob
type BlobItem struct {
	Name         string
	Size         int64
	LastModified time.Time
}
