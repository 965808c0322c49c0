// Package tail prints chunk and dead-letter messages from the stage topics.
package tail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// FilterOptions represents filtering options for the tailed messages
type FilterOptions struct {
	Subscription string
	NSG          string
	ShowRaw      bool
	OutputFormat string
}

// Entry is one tailed message with whatever could be decoded from it
type Entry struct {
	Topic      string                  `json:"topic"`
	Partition  int32                   `json:"partition"`
	Offset     int64                   `json:"offset"`
	Key        string                  `json:"key,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
	Chunk      *events.ChunkEvent      `json:"chunk,omitempty"`
	DeadLetter *events.DeadLetterEvent `json:"deadLetter,omitempty"`
	Raw        string                  `json:"raw,omitempty"`
}

// Tailer consumes topics and writes matching messages to out
type Tailer struct {
	consumer ingestion.Consumer
	topics   []string
	opts     FilterOptions
	out      io.Writer
}

// NewTailer creates a tailer over an unsubscribed consumer
func NewTailer(consumer ingestion.Consumer, topics []string, opts FilterOptions, out io.Writer) *Tailer {
	if opts.OutputFormat == "" {
		opts.OutputFormat = FormatText
	}
	return &Tailer{consumer: consumer, topics: topics, opts: opts, out: out}
}

// Start prints messages until ctx is cancelled
func (t *Tailer) Start(ctx context.Context) error {
	if err := t.consumer.Subscribe(t.topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	log.Info().Strs("topics", t.topics).Str("format", t.opts.OutputFormat).Msg("Tailing stage topics")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch e := t.consumer.Poll(1000).(type) {
		case *kafka.Message:
			entry := Decode(e)
			if t.Matches(entry) {
				if err := t.write(entry); err != nil {
					return err
				}
			}
		case kafka.Error:
			if e.IsFatal() {
				return fmt.Errorf("fatal Kafka error: %w", e)
			}
			log.Warn().Err(e).Msg("Consumer error")
		}
	}
}

// Decode classifies a message as a dead letter, a chunk or raw bytes
func Decode(msg *kafka.Message) Entry {
	entry := Entry{
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
		Key:       string(msg.Key),
		Timestamp: msg.Timestamp,
	}
	if msg.TopicPartition.Topic != nil {
		entry.Topic = *msg.TopicPartition.Topic
	}

	var dl events.DeadLetterEvent
	if err := json.Unmarshal(msg.Value, &dl); err == nil && dl.Stage != "" {
		entry.DeadLetter = &dl
		if ev, err := events.DecodeChunkEvent(dl.Payload); err == nil {
			entry.Chunk = &ev
		}
		return entry
	}

	if ev, err := events.DecodeChunkEvent(msg.Value); err == nil {
		entry.Chunk = &ev
		return entry
	}

	entry.Raw = string(msg.Value)
	return entry
}

// Matches applies the subscription and NSG filters to the entry's blob
func (t *Tailer) Matches(entry Entry) bool {
	if t.opts.Subscription == "" && t.opts.NSG == "" {
		return true
	}
	if entry.Chunk == nil {
		return false
	}
	_, path := entry.Chunk.Container()
	id, err := events.ParseBlobPath(path)
	if err != nil {
		return false
	}
	if t.opts.Subscription != "" && !strings.EqualFold(id.Subscription, t.opts.Subscription) {
		return false
	}
	if t.opts.NSG != "" && !strings.EqualFold(id.NSG, t.opts.NSG) {
		return false
	}
	return true
}

func (t *Tailer) write(entry Entry) error {
	var err error
	if t.opts.OutputFormat == FormatJSON {
		err = json.NewEncoder(t.out).Encode(entry)
	} else {
		_, err = fmt.Fprintln(t.out, t.formatText(entry))
	}
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// formatText renders one line per entry
func (t *Tailer) formatText(entry Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s[%d]@%d", entry.Timestamp.Format("15:04:05.000"), entry.Topic, entry.Partition, entry.Offset)

	if dl := entry.DeadLetter; dl != nil {
		fmt.Fprintf(&b, " | DEAD %s %s from %s[%d]@%d: %s", dl.Stage, dl.Kind, dl.Topic, dl.Partition, dl.Offset, dl.Error)
	}
	if c := entry.Chunk; c != nil {
		_, path := c.Container()
		label := path
		if id, err := events.ParseBlobPath(path); err == nil {
			label = fmt.Sprintf("%s %s-%s-%sT%s mac=%s", id.NSG, id.Year, id.Month, id.Day, id.Hour, id.MAC)
		}
		fmt.Fprintf(&b, " | %s | bytes %d+%d last=%s", label, c.Start, c.Length, c.LastBlockName)
	}
	if entry.Chunk == nil && entry.DeadLetter == nil {
		fmt.Fprintf(&b, " | %s", entry.Raw)
	}
	if t.opts.ShowRaw && entry.Key != "" {
		fmt.Fprintf(&b, " | key=%s", entry.Key)
	}
	return b.String()
}

// Close closes the consumer
func (t *Tailer) Close() error {
	return t.consumer.Close()
}
