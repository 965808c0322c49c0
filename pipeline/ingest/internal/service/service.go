// Package service runs the three pipeline stages: chunking a blob's new
// blocks, splitting oversized chunks and transmitting chunk records.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/checkpoint"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/audit"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/observability"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/sinks"
)

// Stage names used in logs, spans, metrics and dead letters
const (
	StageChunk    = "chunk"
	StageSplit    = "split"
	StageTransmit = "transmit"
)

// Dependencies are the process-lifetime clients shared by the stages.
// Auditor and Metrics may be nil.
type Dependencies struct {
	Sources     ingestion.BlobSourceFactory
	Checkpoints checkpoint.Store
	Producer    ingestion.Producer
	Output      *sinks.Output
	Auditor     *audit.Auditor
	Metrics     *observability.Metrics
}

// Handler processes one chunk taken from a stage topic
type Handler interface {
	Handle(ctx context.Context, ev events.ChunkEvent) error
}

// invocation carries the id, logger and span of one stage run
type invocation struct {
	id      string
	stage   string
	started time.Time
	span    trace.Span
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func startInvocation(ctx context.Context, stage, blob string, metrics *observability.Metrics) (context.Context, *invocation) {
	id := uuid.NewString()
	ctx, span := observability.Tracer().Start(ctx, "nsgflow."+stage, trace.WithAttributes(
		attribute.String("invocation_id", id),
		attribute.String("stage", stage),
		attribute.String("blob", blob),
	))
	return ctx, &invocation{
		id:      id,
		stage:   stage,
		started: time.Now(),
		span:    span,
		logger: log.With().
			Str("invocation_id", id).
			Str("stage", stage).
			Str("blob", blob).
			Logger(),
		metrics: metrics,
	}
}

func (inv *invocation) finish(err error) {
	if err != nil {
		inv.span.RecordError(err)
		inv.span.SetStatus(codes.Error, err.Error())
		inv.logger.Error().Err(err).Str("kind", faults.KindOf(err).String()).Dur("elapsed", time.Since(inv.started)).Msg("Invocation failed")
	}
	inv.metrics.ObserveInvocation(inv.stage, inv.started, err)
	inv.span.End()
}

// flushTimeout bounds the wait for delivery reports of one publish
const flushTimeout = 30 * time.Second

// publish produces messages to topic and waits until every one is
// acknowledged. Failed or unconfirmed deliveries are transport errors.
func publish(ctx context.Context, producer ingestion.Producer, topic string, keys []string, values [][]byte) error {
	delivery := make(chan kafka.Event, len(values))
	for i, value := range values {
		msg := &kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
			Value:          value,
		}
		if keys != nil {
			msg.Key = []byte(keys[i])
		}
		if err := producer.Produce(msg, delivery); err != nil {
			return faults.Transport("service.publish", "failed to enqueue message %d of %d to %s: %w", i+1, len(values), topic, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	for confirmed := 0; confirmed < len(values); confirmed++ {
		select {
		case ev := <-delivery:
			msg, ok := ev.(*kafka.Message)
			if !ok {
				return faults.Transport("service.publish", "unexpected delivery event %v", ev)
			}
			if msg.TopicPartition.Error != nil {
				return faults.Transport("service.publish", "delivery to %s failed: %w", topic, msg.TopicPartition.Error)
			}
		case <-ctx.Done():
			return faults.Transport("service.publish", "%d of %d messages to %s not confirmed: %w", len(values)-confirmed, len(values), topic, ctx.Err())
		}
	}
	return nil
}

// publishChunks encodes chunk events keyed by their blob identity
func publishChunks(ctx context.Context, producer ingestion.Producer, topic string, chunks []events.ChunkEvent) error {
	keys := make([]string, len(chunks))
	values := make([][]byte, len(chunks))
	for i, c := range chunks {
		data, err := json.Marshal(c)
		if err != nil {
			return faults.Parse("service.publish", "failed to encode chunk: %v", err)
		}
		keys[i] = events.ChunkKeyFor(c)
		values[i] = data
	}
	return publish(ctx, producer, topic, keys, values)
}
