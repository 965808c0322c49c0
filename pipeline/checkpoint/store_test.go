package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
)

var blob = events.BlobIdentity{
	Subscription:  "00000000-1111-2222-3333-444444444444",
	ResourceGroup: "rg",
	NSG:           "nsg",
	Year:          "2024",
	Month:         "06",
	Day:           "15",
	Hour:          "10",
	Minute:        "00",
	MAC:           "000D3AF87856",
}

func responseError(status int) error {
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Scheme: "https", Host: "acct.table.core.windows.net"}}
	return &azcore.ResponseError{
		StatusCode:  status,
		ErrorCode:   http.StatusText(status),
		RawResponse: &http.Response{StatusCode: status, Request: req},
	}
}

// fakeTable is an in-memory tableClient
type fakeTable struct {
	rows       map[string][]byte
	createErr  error
	getErr     error
	upsertErr  error
	lastUpsert *aztables.UpsertEntityOptions
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: make(map[string][]byte)}
}

func (f *fakeTable) CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	return aztables.CreateTableResponse{}, f.createErr
}

func (f *fakeTable) GetEntity(ctx context.Context, pk, rk string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	if f.getErr != nil {
		return aztables.GetEntityResponse{}, f.getErr
	}
	row, ok := f.rows[pk+"/"+rk]
	if !ok {
		return aztables.GetEntityResponse{}, responseError(http.StatusNotFound)
	}
	return aztables.GetEntityResponse{Value: row}, nil
}

func (f *fakeTable) UpsertEntity(ctx context.Context, data []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error) {
	if f.upsertErr != nil {
		return aztables.UpsertEntityResponse{}, f.upsertErr
	}
	f.lastUpsert = options
	var e entity
	if err := json.Unmarshal(data, &e); err != nil {
		return aztables.UpsertEntityResponse{}, err
	}
	f.rows[e.PartitionKey+"/"+e.RowKey] = data
	return aztables.UpsertEntityResponse{}, nil
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	bolt, err := NewBoltStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	table, err := newTableStore(context.Background(), newFakeTable(), DefaultTableName)
	require.NoError(t, err)

	return map[string]Store{
		"bolt":   bolt,
		"table":  table,
		"memory": NewMemoryStore(),
	}
}

func TestStore_Contract(t *testing.T) {
	ctx := context.Background()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := store.Get(ctx, blob.PartitionKey(), blob.RowKey())
			require.NoError(t, err)
			assert.False(t, found)

			index, err := Load(ctx, store, blob)
			require.NoError(t, err)
			assert.Equal(t, 1, index, "missing checkpoint reads as the first data block")

			require.NoError(t, Save(ctx, store, blob, 42))
			index, err = Load(ctx, store, blob)
			require.NoError(t, err)
			assert.Equal(t, 42, index)

			require.NoError(t, Save(ctx, store, blob, 57))
			index, found, err = store.Get(ctx, blob.PartitionKey(), blob.RowKey())
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 57, index, "put replaces")

			other := blob
			other.Hour = "11"
			index, err = Load(ctx, store, other)
			require.NoError(t, err)
			assert.Equal(t, 1, index, "keys are independent")

			require.NoError(t, Reset(ctx, store, blob))
			index, err = Load(ctx, store, blob)
			require.NoError(t, err)
			assert.Equal(t, 1, index)
		})
	}
}

func TestLoad_RaisesIndexBelowFirstDataBlock(t *testing.T) {
	tests := []struct {
		name   string
		stored int
		want   int
	}{
		{"zero", 0, 1},
		{"negative", -3, 1},
		{"first data block", 1, 1},
		{"past any block list", 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			require.NoError(t, store.Put(ctx, blob.PartitionKey(), blob.RowKey(), tt.stored))

			index, err := Load(ctx, store, blob)
			require.NoError(t, err)
			assert.Equal(t, tt.want, index)
		})
	}
}

func TestBoltStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	store, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, store, blob, 9))
	require.NoError(t, store.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	index, err := Load(ctx, reopened, blob)
	require.NoError(t, err)
	assert.Equal(t, 9, index)
}

func TestTableStore(t *testing.T) {
	ctx := context.Background()

	t.Run("existing table is fine", func(t *testing.T) {
		fake := newFakeTable()
		fake.createErr = responseError(http.StatusConflict)
		_, err := newTableStore(ctx, fake, DefaultTableName)
		assert.NoError(t, err)
	})

	t.Run("create failure", func(t *testing.T) {
		fake := newFakeTable()
		fake.createErr = responseError(http.StatusForbidden)
		_, err := newTableStore(ctx, fake, DefaultTableName)
		assert.Error(t, err)
	})

	t.Run("upsert replaces the entity", func(t *testing.T) {
		fake := newFakeTable()
		store, err := newTableStore(ctx, fake, DefaultTableName)
		require.NoError(t, err)

		require.NoError(t, Save(ctx, store, blob, 3))
		require.NotNil(t, fake.lastUpsert)
		assert.Equal(t, aztables.UpdateModeReplace, fake.lastUpsert.UpdateMode)
		assert.JSONEq(t,
			`{"PartitionKey":"`+blob.PartitionKey()+`","RowKey":"2024_06_15_10_00","CheckpointIndex":3}`,
			string(fake.rows[blob.PartitionKey()+"/"+blob.RowKey()]))
	})

	t.Run("transport errors surface", func(t *testing.T) {
		fake := newFakeTable()
		store, err := newTableStore(ctx, fake, DefaultTableName)
		require.NoError(t, err)

		fake.getErr = errors.New("connection reset")
		_, err = Load(ctx, store, blob)
		assert.ErrorContains(t, err, "connection reset")

		fake.upsertErr = responseError(http.StatusServiceUnavailable)
		assert.Error(t, Save(ctx, store, blob, 2))
	})
}
