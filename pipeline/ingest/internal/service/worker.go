package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/observability"
)

// DefaultRetryBackoff is the pause before a failed message is polled again
const DefaultRetryBackoff = time.Second

// StageWorker consumes one stage topic and hands each chunk to its handler.
// Offsets are committed only after the handler succeeded or the message was
// dead-lettered, so every chunk is processed at least once.
type StageWorker struct {
	stage           string
	topic           string
	deadLetterTopic string
	pollTimeoutMs   int
	retryBackoff    time.Duration

	consumer ingestion.Consumer
	producer ingestion.Producer
	handler  Handler
	metrics  *observability.Metrics
}

// WorkerConfig names the topics and timing of a stage worker
type WorkerConfig struct {
	Stage           string
	Topic           string
	DeadLetterTopic string
	PollTimeoutMs   int
	RetryBackoff    time.Duration
}

// NewStageWorker creates a worker; producer publishes dead letters
func NewStageWorker(cfg WorkerConfig, consumer ingestion.Consumer, producer ingestion.Producer, handler Handler, metrics *observability.Metrics) *StageWorker {
	if cfg.PollTimeoutMs <= 0 {
		cfg.PollTimeoutMs = 500
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return &StageWorker{
		stage:           cfg.Stage,
		topic:           cfg.Topic,
		deadLetterTopic: cfg.DeadLetterTopic,
		pollTimeoutMs:   cfg.PollTimeoutMs,
		retryBackoff:    cfg.RetryBackoff,
		consumer:        consumer,
		producer:        producer,
		handler:         handler,
		metrics:         metrics,
	}
}

// Start subscribes and runs the poll loop until ctx is cancelled
func (w *StageWorker) Start(ctx context.Context) error {
	if err := w.consumer.Subscribe([]string{w.topic}, nil); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.topic, err)
	}
	log.Info().Str("stage", w.stage).Str("topic", w.topic).Msg("Stage worker subscribed")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("stage", w.stage).Msg("Context cancelled, stopping stage worker")
			return nil
		default:
		}

		switch e := w.consumer.Poll(w.pollTimeoutMs).(type) {
		case nil:
		case *kafka.Message:
			w.handleMessage(ctx, e)
		case kafka.Error:
			if e.IsFatal() {
				return fmt.Errorf("fatal Kafka error: %w", e)
			}
			log.Warn().Err(e).Str("stage", w.stage).Msg("Kafka error")
		default:
			log.Debug().Str("stage", w.stage).Str("event", fmt.Sprintf("%T", e)).Msg("Ignoring Kafka event")
		}
	}
}

// handleMessage runs the handler and settles the message offset
func (w *StageWorker) handleMessage(ctx context.Context, msg *kafka.Message) {
	logger := log.With().
		Str("stage", w.stage).
		Int32("partition", msg.TopicPartition.Partition).
		Int64("offset", int64(msg.TopicPartition.Offset)).
		Logger()

	ev, err := events.DecodeChunkEvent(msg.Value)
	if err == nil {
		err = w.handler.Handle(ctx, ev)
	}

	switch {
	case err == nil:
		w.commit(msg)
	case ctx.Err() != nil:
		// shutting down; the uncommitted message is redelivered to the next consumer
		logger.Info().Err(err).Msg("Handler interrupted by shutdown")
	case faults.Retryable(err):
		logger.Warn().Err(err).Dur("backoff", w.retryBackoff).Msg("Retryable failure, message will be redelivered")
		w.rewind(ctx, msg)
	default:
		if dlErr := w.deadLetter(ctx, msg, err); dlErr != nil {
			logger.Error().Err(dlErr).Msg("Failed to dead-letter message, message will be redelivered")
			w.rewind(ctx, msg)
			return
		}
		logger.Error().Err(err).Str("kind", faults.KindOf(err).String()).Msg("Message moved to dead-letter topic")
		w.commit(msg)
	}
}

func (w *StageWorker) commit(msg *kafka.Message) {
	if _, err := w.consumer.CommitMessage(msg); err != nil {
		log.Error().Err(err).Str("stage", w.stage).Int64("offset", int64(msg.TopicPartition.Offset)).Msg("Failed to commit offset")
	}
}

// rewind seeks the partition back so the message is polled again
func (w *StageWorker) rewind(ctx context.Context, msg *kafka.Message) {
	if err := w.consumer.Seek(msg.TopicPartition, 0); err != nil {
		log.Error().Err(err).Str("stage", w.stage).Msg("Failed to seek back to failed message")
	}
	if w.retryBackoff == 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(w.retryBackoff):
	}
}

func (w *StageWorker) deadLetter(ctx context.Context, msg *kafka.Message, cause error) error {
	dl := events.DeadLetterEvent{
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
		Stage:     w.stage,
		Kind:      faults.KindOf(cause).String(),
		Error:     cause.Error(),
		Payload:   msg.Value,
		FailedAt:  time.Now().UTC(),
	}
	if msg.TopicPartition.Topic != nil {
		dl.Topic = *msg.TopicPartition.Topic
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	if err := publish(ctx, w.producer, w.deadLetterTopic, []string{string(msg.Key)}, [][]byte{data}); err != nil {
		return err
	}
	w.metrics.DeadLettered(w.stage, dl.Kind)
	return nil
}
