package ingestion

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// NewKafkaProducer creates a producer tuned for guaranteed, ordered delivery
func NewKafkaProducer(cfg config.KafkaConfig) (Producer, error) {
	return NewKafkaProducerWithConfig(&kafka.ConfigMap{
		"bootstrap.servers":                     cfg.Brokers,
		"acks":                                  cfg.Producer.Acks,
		"linger.ms":                             5,
		"compression.type":                      "none",
		"max.in.flight.requests.per.connection": 1,
		"retries":                               2147483647,
		"retry.backoff.ms":                      50,
		"request.timeout.ms":                    5000,
		"delivery.timeout.ms":                   cfg.Producer.FlushTimeoutMs,
		"enable.idempotence":                    true,
	})
}

// NewKafkaProducerWithConfig creates a producer from a raw librdkafka config
func NewKafkaProducerWithConfig(configMap *kafka.ConfigMap) (Producer, error) {
	producer, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	go drainProducerEvents(producer.Events())
	return &kafkaProducerAdapter{producer: producer}, nil
}

// drainProducerEvents logs client-level errors until the producer closes the
// channel and returns how many it saw. Deliveries travel on per-call channels,
// so anything arriving here was not awaited by a caller.
func drainProducerEvents(events <-chan kafka.Event) int {
	failures := 0
	for event := range events {
		switch e := event.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				failures++
				log.Error().Err(e.TopicPartition.Error).Msg("Unawaited Kafka delivery failed")
			}
		case kafka.Error:
			failures++
			log.Error().Err(e).Bool("fatal", e.IsFatal()).Msg("Kafka producer error")
		}
	}
	return failures
}

// NewKafkaConsumer creates a manually committed consumer in the configured group
func NewKafkaConsumer(cfg config.KafkaConfig, group string) (Consumer, error) {
	if group == "" {
		group = cfg.ConsumerGroup
	}
	return NewKafkaConsumerWithConfig(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           group,
		"auto.offset.reset":  cfg.Consumer.AutoOffsetReset,
		"enable.auto.commit": false,
	})
}

// NewKafkaConsumerWithConfig creates a consumer from a raw librdkafka config
func NewKafkaConsumerWithConfig(configMap *kafka.ConfigMap) (Consumer, error) {
	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}
	return &kafkaConsumerAdapter{consumer: consumer}, nil
}

// kafkaProducerAdapter adapts Kafka producer to our interface
type kafkaProducerAdapter struct {
	producer *kafka.Producer
}

func (a *kafkaProducerAdapter) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	return a.producer.Produce(msg, deliveryChan)
}

func (a *kafkaProducerAdapter) Flush(timeoutMs int) int {
	return a.producer.Flush(timeoutMs)
}

func (a *kafkaProducerAdapter) Close() {
	a.producer.Close()
}

// kafkaConsumerAdapter adapts Kafka consumer to our interface
type kafkaConsumerAdapter struct {
	consumer *kafka.Consumer
}

func (a *kafkaConsumerAdapter) Subscribe(topics []string, rebalanceCb kafka.RebalanceCb) error {
	return a.consumer.SubscribeTopics(topics, rebalanceCb)
}

func (a *kafkaConsumerAdapter) Poll(timeoutMs int) kafka.Event {
	return a.consumer.Poll(timeoutMs)
}

func (a *kafkaConsumerAdapter) CommitMessage(msg *kafka.Message) ([]kafka.TopicPartition, error) {
	return a.consumer.CommitMessage(msg)
}

func (a *kafkaConsumerAdapter) Seek(partition kafka.TopicPartition, ignoredTimeoutMs int) error {
	return a.consumer.Seek(partition, ignoredTimeoutMs)
}

func (a *kafkaConsumerAdapter) Close() error {
	return a.consumer.Close()
}
