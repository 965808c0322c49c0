package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/batch"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/format"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/observability"
)

// TransmitResult counts what one stage 3 invocation did with a chunk
type TransmitResult struct {
	Records int
	Dropped int
	Batches int
	Bytes   int
}

// Transmitter is stage 3: it fetches a chunk, denormalizes its records,
// renders them for the sink and sends them in size-bounded batches.
type Transmitter struct {
	deps Dependencies
}

// NewTransmitter creates the stage 3 handler; deps.Output must be set
func NewTransmitter(deps Dependencies) *Transmitter {
	return &Transmitter{deps: deps}
}

// Handle transmits one chunk
func (t *Transmitter) Handle(ctx context.Context, ev events.ChunkEvent) error {
	_, err := t.Transmit(ctx, ev)
	return err
}

// Transmit sends every record of the chunk. Records that fail to parse or
// render too large for the sink are dropped and audited; a sink failure
// aborts the invocation so the chunk is redelivered.
func (t *Transmitter) Transmit(ctx context.Context, ev events.ChunkEvent) (result TransmitResult, err error) {
	ctx, inv := startInvocation(ctx, StageTransmit, ev.BlobName, t.deps.Metrics)
	defer func() { inv.finish(err) }()

	src, err := t.deps.Sources.Source(ev.StorageAccount)
	if err != nil {
		return result, err
	}
	container, path := ev.Container()
	content, err := src.ReadRange(ctx, container, path, ev.Start, ev.Length)
	if err != nil {
		return result, err
	}

	doc, err := chunking.WrapRecords(content)
	if err != nil {
		t.deps.Auditor.ErrorRecord(ctx, content)
		return result, err
	}
	t.deps.Auditor.Incoming(ctx, doc)

	records, err := flowlog.Denormalize(doc)
	if err != nil {
		t.deps.Auditor.ErrorRecord(ctx, doc)
		return result, err
	}

	out := t.deps.Output
	conv := out.Converter
	limits := out.Limits
	itemLimits := batch.Limits{MaxBytes: limits.MaxBytes - conv.FrameOverhead(), MaxItems: limits.MaxItems}
	itemSize := func(item []byte) int { return len(item) + conv.ItemOverhead() }

	drop := func(reason string, dropErr error, raw []byte) {
		result.Dropped++
		t.deps.Metrics.RecordDropped(reason)
		inv.logger.Warn().Err(dropErr).Str("reason", reason).Msg("Record dropped")
		t.deps.Auditor.ErrorRecord(ctx, raw)
	}

	rendered := func(yield func([]byte) bool) {
		for rec, recErr := range records {
			if recErr != nil {
				var terr *flowlog.TupleError
				raw := []byte(recErr.Error())
				if errors.As(recErr, &terr) {
					raw = []byte(terr.Tuple)
				}
				drop(observability.DropParse, recErr, raw)
				continue
			}
			result.Records++

			item, convErr := conv.Convert(rec)
			if convErr != nil {
				raw, _ := json.Marshal(rec)
				drop(observability.DropParse, convErr, raw)
				continue
			}
			if fitErr := format.CheckFits(conv, item, limits.MaxBytes); fitErr != nil {
				drop(observability.DropOverflow, fitErr, item)
				continue
			}
			if !yield(item) {
				return
			}
		}
	}

	err = t.send(ctx, inv, batch.Batches(iter.Seq[[]byte](rendered), itemSize, itemLimits), &result)
	t.deps.Metrics.RecordsDenormalized(result.Records)
	if err != nil {
		return result, err
	}

	inv.logger.Info().
		Int64("start", ev.Start).
		Int64("length", ev.Length).
		Int("records", result.Records).
		Int("dropped", result.Dropped).
		Int("batches", result.Batches).
		Int("bytes", result.Bytes).
		Msg("Chunk transmitted")
	return result, nil
}

func (t *Transmitter) send(ctx context.Context, inv *invocation, batches iter.Seq[[][]byte], result *TransmitResult) error {
	out := t.deps.Output
	sinkName := out.Sink.Name()

	for items := range batches {
		payload := out.Converter.Frame(items)
		t.deps.Auditor.Outgoing(ctx, payload)

		err := out.Sink.Send(ctx, payload)
		t.deps.Metrics.BatchSent(sinkName, len(payload), err)
		if err != nil {
			return fmt.Errorf("failed to send batch %d (%d records) to %s: %w", result.Batches+1, len(items), sinkName, err)
		}

		result.Batches++
		result.Bytes += len(payload)
		inv.logger.Debug().Int("items", len(items)).Int("bytes", len(payload)).Msg("Batch sent")
	}
	return nil
}
