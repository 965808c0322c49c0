package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/config"
)

// DefaultTableName is the table checkpoints live in
const DefaultTableName = "checkpoints"

// tableClient abstracts the Azure Table operations the store needs
type tableClient interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// entity is the persisted row
type entity struct {
	PartitionKey    string `json:"PartitionKey"`
	RowKey          string `json:"RowKey"`
	CheckpointIndex int    `json:"CheckpointIndex"`
}

// TableStore implements Store on Azure Table storage
type TableStore struct {
	client tableClient
	table  string
}

// NewTableStore connects to the checkpoint table of the account, creating the
// table when it does not exist
func NewTableStore(ctx context.Context, account config.StorageAccount, tableName string) (*TableStore, error) {
	if tableName == "" {
		tableName = DefaultTableName
	}

	var (
		service *aztables.ServiceClient
		err     error
	)
	if account.ConnectionString != "" {
		service, err = aztables.NewServiceClientFromConnectionString(account.ConnectionString, nil)
	} else {
		var cred *aztables.SharedKeyCredential
		cred, err = aztables.NewSharedKeyCredential(account.AccountName, account.AccessKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create table shared key credential: %w", err)
		}
		service, err = aztables.NewServiceClientWithSharedKey(account.TableServiceURL(), cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create table service client: %w", err)
	}

	return newTableStore(ctx, service.NewClient(tableName), tableName)
}

func newTableStore(ctx context.Context, client tableClient, tableName string) (*TableStore, error) {
	if _, err := client.CreateTable(ctx, nil); err != nil && !hasStatus(err, http.StatusConflict) {
		return nil, fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	log.Info().
		Str("table", tableName).
		Msg("Table checkpoint store initialized")

	return &TableStore{client: client, table: tableName}, nil
}

// Get retrieves the checkpoint row
func (s *TableStore) Get(ctx context.Context, partitionKey, rowKey string) (int, bool, error) {
	resp, err := s.client.GetEntity(ctx, partitionKey, rowKey, nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get checkpoint entity: %w", err)
	}

	var e entity
	if err := json.Unmarshal(resp.Value, &e); err != nil {
		return 0, false, fmt.Errorf("invalid checkpoint entity: %w", err)
	}
	return e.CheckpointIndex, true, nil
}

// Put replaces the checkpoint row
func (s *TableStore) Put(ctx context.Context, partitionKey, rowKey string, index int) error {
	data, err := json.Marshal(entity{PartitionKey: partitionKey, RowKey: rowKey, CheckpointIndex: index})
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint entity: %w", err)
	}

	_, err = s.client.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint entity: %w", err)
	}

	log.Debug().
		Str("partition_key", partitionKey).
		Str("row_key", rowKey).
		Int("checkpoint", index).
		Msg("Checkpoint updated")

	return nil
}

// Close is a no-op; the table client holds no connection
func (s *TableStore) Close() error {
	return nil
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}
