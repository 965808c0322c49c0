package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/batch"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/format"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/ingestion"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/sinks"
)

const (
	testAccount    = "flowlogs"
	testContainer  = "insights-logs-networksecuritygroupflowevent"
	testResourceID = "/SUBSCRIPTIONS/6A1B2C3D-0000-1111-2222-333344445555/RESOURCEGROUPS/RG-NET/PROVIDERS/MICROSOFT.NETWORK/NETWORKSECURITYGROUPS/NSG-WEB"
	testBlobPath   = "resourceId=" + testResourceID + "/y=2024/m=06/d=15/h=10/m=00/macAddress=000D3AF87856/PT1H.json"
	testChunkKey   = "6A1B2C3D_0000_1111_2222_333344445555_RG-NET_NSG-WEB_000D3AF87856:2024_06_15_10_00"

	recordsHead = `{"records":[`
	recordsTail = `]}`
)

func testConfig() *config.Config {
	return &config.Config{
		Source: config.SourceConfig{Account: testAccount, Container: testContainer},
		Kafka: config.KafkaConfig{
			Stage1Topic:     events.TopicStage1,
			Stage2Topic:     events.TopicStage2,
			DeadLetterTopic: events.TopicDeadLetter,
		},
		Chunking: config.ChunkingConfig{MaxChunkSize: chunking.DefaultMaxChunkSize},
		Watch:    config.WatchConfig{Interval: time.Second},
	}
}

// flowRecord renders one per-minute record with the given tuples
func flowRecord(minute int, tuples ...string) string {
	quoted := make([]string, len(tuples))
	for i, tu := range tuples {
		quoted[i] = `"` + tu + `"`
	}
	return fmt.Sprintf(`{"time":"2024-06-15T10:%02d:00.5173253Z","category":"NetworkSecurityGroupFlowEvent",`+
		`"operationName":"NetworkSecurityGroupFlowEvents","resourceId":"%s","properties":{"Version":2,"flows":[`+
		`{"rule":"DefaultRule_AllowInternetOutBound","flows":[{"mac":"000D3AF87856","flowTuples":[%s]}]}]}}`,
		minute, testResourceID, strings.Join(quoted, ","))
}

func tuple(n int) string {
	return fmt.Sprintf("17184456%02d,10.0.0.4,52.1.1.%d,4433%d,443,T,O,A,C,3,420,2,180", n, n, n)
}

type fakeBlob struct {
	blocks   []chunking.Block
	content  []byte
	metadata map[string]*string
}

// fakeSource keeps blobs as block lists over one byte slice
type fakeSource struct {
	mu      sync.Mutex
	blobs   map[string]*fakeBlob
	readErr error
	reads   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{blobs: make(map[string]*fakeBlob)}
}

// putBlob replaces a blob with the concatenation of blocks
func (s *fakeSource) putBlob(container, path string, blocks ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &fakeBlob{metadata: map[string]*string{}}
	if old, ok := s.blobs[container+"/"+path]; ok {
		b.metadata = old.metadata
	}
	for i, block := range blocks {
		b.blocks = append(b.blocks, chunking.Block{Name: fmt.Sprintf("%03d", i), Size: int64(len(block))})
		b.content = append(b.content, block...)
	}
	s.blobs[container+"/"+path] = b
}

func (s *fakeSource) blob(container, path string) (*fakeBlob, error) {
	b, ok := s.blobs[container+"/"+path]
	if !ok {
		return nil, faults.Transport("fake", "blob %s/%s not found", container, path)
	}
	return b, nil
}

func (s *fakeSource) ListCommittedBlocks(ctx context.Context, container, path string) ([]chunking.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.blob(container, path)
	if err != nil {
		return nil, err
	}
	return append([]chunking.Block(nil), b.blocks...), nil
}

func (s *fakeSource) ReadRange(ctx context.Context, container, path string, start, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	b, err := s.blob(container, path)
	if err != nil {
		return nil, err
	}
	if start < 0 || start+length > int64(len(b.content)) {
		return nil, faults.Transport("fake", "range %d+%d outside %d bytes", start, length, len(b.content))
	}
	return append([]byte(nil), b.content[start:start+length]...), nil
}

func (s *fakeSource) Metadata(ctx context.Context, container, path string) (map[string]*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.blob(container, path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*string, len(b.metadata))
	for k, v := range b.metadata {
		out[k] = v
	}
	return out, nil
}

func (s *fakeSource) SetMetadata(ctx context.Context, container, path string, metadata map[string]*string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.blob(container, path)
	if err != nil {
		return err
	}
	b.metadata = metadata
	return nil
}

func (s *fakeSource) ListBlobs(ctx context.Context, container, prefix string) ([]ingestion.BlobItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []ingestion.BlobItem
	for key, b := range s.blobs {
		c, path, _ := strings.Cut(key, "/")
		if c != container || !strings.HasPrefix(path, prefix) {
			continue
		}
		items = append(items, ingestion.BlobItem{Name: path, Size: int64(len(b.content))})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

type fakeSources struct {
	src *fakeSource
}

func (f fakeSources) Source(account string) (ingestion.BlobSource, error) {
	if account != testAccount {
		return nil, faults.Configuration("fake", "unknown storage account %q", account)
	}
	return f.src, nil
}

// fakeProducer records messages and reports delivery immediately
type fakeProducer struct {
	mu        sync.Mutex
	messages  []*kafka.Message
	failTopic string
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	if deliveryChan != nil {
		report := *msg
		if *msg.TopicPartition.Topic == p.failTopic {
			report.TopicPartition.Error = kafka.NewError(kafka.ErrMsgTimedOut, "Local: Message timed out", false)
		}
		deliveryChan <- &report
	}
	return nil
}

func (p *fakeProducer) Flush(int) int           { return 0 }
func (p *fakeProducer) Close()                  {}

func (p *fakeProducer) onTopic(topic string) []*kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*kafka.Message
	for _, m := range p.messages {
		if *m.TopicPartition.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *fakeProducer) chunks(t *testing.T, topic string) []events.ChunkEvent {
	t.Helper()
	var out []events.ChunkEvent
	for _, m := range p.onTopic(topic) {
		ev, err := events.DecodeChunkEvent(m.Value)
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

// fakeSink collects payloads; err fails every send
type fakeSink struct {
	payloads [][]byte
	err      error
}

func (s *fakeSink) Name() string { return "test" }

func (s *fakeSink) Send(ctx context.Context, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, append([]byte(nil), payload...))
	return nil
}

func (s *fakeSink) Close() error { return nil }

func jsonOutput(sink sinks.Sink, limits batch.Limits) *sinks.Output {
	return &sinks.Output{Sink: sink, Converter: format.Bundle{}, Limits: limits.WithDefaults()}
}

// recordingUploader captures audit blobs by name
type recordingUploader struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (u *recordingUploader) Upload(ctx context.Context, container, name string, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.blobs == nil {
		u.blobs = make(map[string][]byte)
	}
	u.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (u *recordingUploader) withPrefix(prefix string) [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out [][]byte
	for name, data := range u.blobs {
		if strings.HasPrefix(name, prefix+"/") {
			out = append(out, data)
		}
	}
	return out
}

func decodeBundle(t *testing.T, payload []byte) []map[string]any {
	t.Helper()
	var bundle struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal(payload, &bundle))
	return bundle.Records
}
