package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/batch"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/audit"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// chunkOf stores records as a blob and returns the chunk spanning them
func chunkOf(src *fakeSource, records ...string) events.ChunkEvent {
	blocks := []string{recordsHead}
	var length int64
	for i, r := range records {
		if i > 0 {
			r = "," + r
		}
		blocks = append(blocks, r)
		length += int64(len(r))
	}
	blocks = append(blocks, recordsTail)
	src.putBlob(testContainer, testBlobPath, blocks...)

	return events.ChunkEvent{
		BlobName:       testContainer + "/" + testBlobPath,
		StorageAccount: testAccount,
		Chunk:          chunking.Chunk{Start: int64(len(recordsHead)), Length: length, LastBlockName: "001"},
	}
}

func newTestTransmitter(src *fakeSource, sink *fakeSink, limits batch.Limits, uploader *recordingUploader) *Transmitter {
	deps := Dependencies{
		Sources: fakeSources{src: src},
		Output:  jsonOutput(sink, limits),
	}
	if uploader != nil {
		deps.Auditor = audit.New(uploader, config.AuditConfig{
			Container:       "nsgflow-audit",
			LogIncomingJSON: true,
			LogOutgoing:     true,
			LogErrorRecords: true,
		})
	}
	return NewTransmitter(deps)
}

func TestTransmitter_Transmit(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	uploader := &recordingUploader{}
	ev := chunkOf(src, flowRecord(0, tuple(1), tuple(2)), flowRecord(1, tuple(3), tuple(4)))

	result, err := newTestTransmitter(src, sink, batch.Limits{}, uploader).Transmit(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, sink.payloads, 1)
	assert.Equal(t, TransmitResult{Records: 4, Batches: 1, Bytes: len(sink.payloads[0])}, result)

	records := decodeBundle(t, sink.payloads[0])
	require.Len(t, records, 4)
	assert.Equal(t, "52.1.1.1", records[0]["destinationAddress"])
	assert.Equal(t, "52.1.1.4", records[3]["destinationAddress"])

	assert.Len(t, uploader.withPrefix(audit.PrefixIncoming), 1)
	assert.Equal(t, sink.payloads, uploader.withPrefix(audit.PrefixOutgoing))
	assert.Empty(t, uploader.withPrefix(audit.PrefixErrorRecord))
}

func TestTransmitter_Transmit_ItemLimit(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	ev := chunkOf(src, flowRecord(0, tuple(1), tuple(2), tuple(3)))

	result, err := newTestTransmitter(src, sink, batch.Limits{MaxItems: 2}, nil).Transmit(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Batches)
	require.Len(t, sink.payloads, 2)
	assert.Len(t, decodeBundle(t, sink.payloads[0]), 2)
	assert.Len(t, decodeBundle(t, sink.payloads[1]), 1)
}

func TestTransmitter_Transmit_ByteLimit(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	ev := chunkOf(src, flowRecord(0, tuple(1), tuple(2), tuple(3), tuple(4)))

	const limit = 1200
	result, err := newTestTransmitter(src, sink, batch.Limits{MaxBytes: limit}, nil).Transmit(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Records)
	assert.Greater(t, result.Batches, 1)

	total := 0
	for _, p := range sink.payloads {
		assert.LessOrEqual(t, len(p), limit)
		total += len(decodeBundle(t, p))
	}
	assert.Equal(t, 4, total)
}

func TestTransmitter_Transmit_DropsBadTuples(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	uploader := &recordingUploader{}
	ev := chunkOf(src, flowRecord(0, tuple(1), "1718445601,10.0.0.4", tuple(2)))

	result, err := newTestTransmitter(src, sink, batch.Limits{}, uploader).Transmit(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Records)
	assert.Equal(t, 1, result.Dropped)
	assert.Len(t, decodeBundle(t, sink.payloads[0]), 2)

	errorRecords := uploader.withPrefix(audit.PrefixErrorRecord)
	require.Len(t, errorRecords, 1)
	assert.Equal(t, "1718445601,10.0.0.4", string(errorRecords[0]))
}

func TestTransmitter_Transmit_DropsOversizedRecords(t *testing.T) {
	src := newFakeSource()
	sink := &fakeSink{}
	ev := chunkOf(src, flowRecord(0, tuple(1)))

	result, err := newTestTransmitter(src, sink, batch.Limits{MaxBytes: 64}, nil).Transmit(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, result.Batches)
	assert.Empty(t, sink.payloads)
}

func TestTransmitter_Transmit_Errors(t *testing.T) {
	t.Run("sink failure is retryable", func(t *testing.T) {
		src := newFakeSource()
		sink := &fakeSink{err: faults.Transport("test", "collector returned 503")}
		ev := chunkOf(src, flowRecord(0, tuple(1)))

		_, err := newTestTransmitter(src, sink, batch.Limits{}, nil).Transmit(context.Background(), ev)
		require.Error(t, err)
		assert.True(t, faults.Is(err, faults.KindTransport))
		assert.True(t, faults.Retryable(err))
	})

	t.Run("chunk without records is a parse error", func(t *testing.T) {
		src := newFakeSource()
		src.putBlob(testContainer, testBlobPath, recordsHead, "          ", recordsTail)
		ev := events.ChunkEvent{
			BlobName:       testContainer + "/" + testBlobPath,
			StorageAccount: testAccount,
			Chunk:          chunking.Chunk{Start: int64(len(recordsHead)), Length: 10},
		}

		err := newTestTransmitter(src, &fakeSink{}, batch.Limits{}, nil).Handle(context.Background(), ev)
		require.Error(t, err)
		assert.True(t, faults.Is(err, faults.KindParse))
		assert.False(t, faults.Retryable(err))
	})

	t.Run("unknown storage account", func(t *testing.T) {
		src := newFakeSource()
		ev := chunkOf(src, flowRecord(0, tuple(1)))
		ev.StorageAccount = "other"

		err := newTestTransmitter(src, &fakeSink{}, batch.Limits{}, nil).Handle(context.Background(), ev)
		require.Error(t, err)
		assert.True(t, faults.Is(err, faults.KindConfiguration))
	})
}
