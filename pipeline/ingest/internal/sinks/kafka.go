package sinks

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
)

// KafkaSink produces each payload as one message and waits for its delivery report
type KafkaSink struct {
	producer ingestion.Producer
	topic    string
}

// NewKafkaSink wraps an existing producer
func NewKafkaSink(producer ingestion.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// NewEventHubSink connects to a Kafka-protocol event bus. A connection
// string switches to the Azure Event Hubs SASL PLAIN handshake.
func NewEventHubSink(cfg config.EventHubConfig) (*KafkaSink, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"message.max.bytes":  cfg.MaxBytes + 64*1024,
	}
	if cfg.ConnectionString != "" {
		_ = configMap.SetKey("security.protocol", "SASL_SSL")
		_ = configMap.SetKey("sasl.mechanisms", "PLAIN")
		_ = configMap.SetKey("sasl.username", "$ConnectionString")
		_ = configMap.SetKey("sasl.password", cfg.ConnectionString)
	}

	producer, err := ingestion.NewKafkaProducerWithConfig(configMap)
	if err != nil {
		return nil, err
	}
	return NewKafkaSink(producer, cfg.Topic), nil
}

func (s *KafkaSink) Name() string { return config.BindingEventHub }

// Send blocks until the broker acknowledged the message or ctx is done
func (s *KafkaSink) Send(ctx context.Context, payload []byte) error {
	delivery := make(chan kafka.Event, 1)
	err := s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Value:          payload,
	}, delivery)
	if err != nil {
		return faults.Transport("sinks.kafka", "failed to produce to %s: %w", s.topic, err)
	}

	select {
	case ev := <-delivery:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return faults.Transport("sinks.kafka", "unexpected delivery event %v", ev)
		}
		if msg.TopicPartition.Error != nil {
			return faults.Transport("sinks.kafka", "delivery to %s failed: %w", s.topic, msg.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return faults.Transport("sinks.kafka", "delivery to %s not confirmed: %w", s.topic, ctx.Err())
	}
}

// Close flushes outstanding messages and closes the producer
func (s *KafkaSink) Close() error {
	s.producer.Flush(15000)
	s.producer.Close()
	return nil
}
