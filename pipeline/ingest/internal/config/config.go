package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/batch"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/chunking"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/events"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// Output bindings
const (
	BindingArcSight   = "arcsight"
	BindingLogstash   = "logstash"
	BindingSplunk     = "splunk"
	BindingEventHub   = "eventhub"
	BindingOpenSearch = "opensearch"
)

// Checkpoint backends
const (
	CheckpointTable  = "table"
	CheckpointBolt   = "bolt"
	CheckpointMemory = "memory"
)

const (
	DefaultContainer       = "insights-logs-networksecuritygroupflowevent"
	DefaultAuditContainer  = "nsgflow-audit"
	DefaultConsumerGroup   = "nsgflow"
	DefaultSplunkMaxItems  = 450
	DefaultEventHubItems   = 120
	defaultFlushTimeoutMs  = 30000
	defaultPollTimeoutMs   = 500
	defaultWatchInterval   = 30 * time.Second
	defaultSinkTimeout     = 5 * time.Minute
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultTracingProtocol = "grpc"
)

// Config represents the flow-log pipeline configuration
type Config struct {
	// Path of the shared storage account registry; empty searches the default locations
	StorageConfig string `yaml:"storage_config" env:"NSGFLOW_STORAGE_CONFIG"`

	Source   SourceConfig   `yaml:"source"`
	State    StateConfig    `yaml:"state"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Output   OutputConfig   `yaml:"output"`
	Audit    AuditConfig    `yaml:"audit"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SourceConfig locates the flow-log blobs
type SourceConfig struct {
	Account   string `yaml:"account" env:"NSG_SOURCE_ACCOUNT"`
	Container string `yaml:"container" env:"BLOB_CONTAINER_NAME" default:"insights-logs-networksecuritygroupflowevent"`
}

// StateConfig locates the checkpoint store
type StateConfig struct {
	Account           string `yaml:"account" env:"STATE_ACCOUNT"`
	CheckpointBackend string `yaml:"checkpoint_backend" env:"CHECKPOINT_BACKEND" default:"table"`
	CheckpointTable   string `yaml:"checkpoint_table" env:"CHECKPOINT_TABLE" default:"checkpoints"`
	BoltPath          string `yaml:"bolt_path" env:"CHECKPOINT_BOLT_PATH" default:"checkpoints.db"`
}

// KafkaConfig contains Kafka connection settings for the stage topics
type KafkaConfig struct {
	Brokers         string `yaml:"brokers" env:"KAFKA_BROKERS" default:"localhost:9092"`
	Stage1Topic     string `yaml:"stage1_topic" env:"KAFKA_STAGE1_TOPIC" default:"stage1"`
	Stage2Topic     string `yaml:"stage2_topic" env:"KAFKA_STAGE2_TOPIC" default:"stage2"`
	DeadLetterTopic string `yaml:"dead_letter_topic" env:"KAFKA_DEAD_LETTER_TOPIC" default:"stage-deadletter"`
	ConsumerGroup   string `yaml:"consumer_group" env:"CONSUMER_GROUP" default:"nsgflow"`

	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
}

// ProducerConfig contains Kafka producer settings
type ProducerConfig struct {
	Acks           string `yaml:"acks" env:"KAFKA_PRODUCER_ACKS" default:"all"`
	FlushTimeoutMs int    `yaml:"flush_timeout_ms" env:"KAFKA_PRODUCER_FLUSH_TIMEOUT_MS" default:"30000"`
}

// ConsumerConfig contains Kafka consumer settings
type ConsumerConfig struct {
	AutoOffsetReset string `yaml:"auto_offset_reset" env:"KAFKA_CONSUMER_AUTO_OFFSET_RESET" default:"earliest"`
	PollTimeoutMs   int    `yaml:"poll_timeout_ms" env:"KAFKA_CONSUMER_POLL_TIMEOUT_MS" default:"500"`
}

// ChunkingConfig bounds the byte ranges handed to downstream stages
type ChunkingConfig struct {
	MaxChunkSize int64 `yaml:"max_chunk_size" env:"MAX_CHUNK_SIZE" default:"102400"`
}

// OutputConfig selects and configures the sink
type OutputConfig struct {
	Binding             string        `yaml:"binding" env:"OUTPUT_BINDING"`
	MaxTransmissionSize int           `yaml:"max_transmission_size" env:"MAX_TRANSMISSION_SIZE" default:"524288"`
	Timeout             time.Duration `yaml:"timeout" env:"SINK_TIMEOUT" default:"5m"`

	ArcSight   ArcSightConfig   `yaml:"arcsight"`
	Logstash   LogstashConfig   `yaml:"logstash"`
	Splunk     SplunkConfig     `yaml:"splunk"`
	EventHub   EventHubConfig   `yaml:"eventhub"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
}

// ArcSightConfig is the TCP CEF collector
type ArcSightConfig struct {
	Address string `yaml:"address" env:"ARCSIGHT_ADDRESS"`
}

// LogstashConfig is the HTTPS JSON collector
type LogstashConfig struct {
	URL      string `yaml:"url" env:"LOGSTASH_ADDRESS"`
	User     string `yaml:"user" env:"LOGSTASH_HTTP_USER"`
	Password string `yaml:"password" env:"LOGSTASH_HTTP_PWD"`
}

// SplunkConfig is the HTTP Event Collector
type SplunkConfig struct {
	URL            string `yaml:"url" env:"SPLUNK_ADDRESS"`
	Token          string `yaml:"token" env:"SPLUNK_TOKEN"`
	CertThumbprint string `yaml:"cert_thumbprint" env:"SPLUNK_CERT_THUMBPRINT"`
	SourceType     string `yaml:"source_type" env:"SPLUNK_SOURCE_TYPE"`
	MaxItems       int    `yaml:"max_items" env:"SPLUNK_MAX_ITEMS" default:"450"`
}

// EventHubConfig is the Kafka-protocol event bus. Azure Event Hubs is reached
// through its Kafka endpoint with the namespace connection string as password.
type EventHubConfig struct {
	Brokers          string `yaml:"brokers" env:"EVENTHUB_BROKERS"`
	Topic            string `yaml:"topic" env:"EVENTHUB_NAME"`
	ConnectionString string `yaml:"connection_string" env:"EVENTHUB_CONNECTION"`
	Format           string `yaml:"format" env:"EVENTHUB_FORMAT" default:"ecs"`
	MaxBytes         int    `yaml:"max_bytes" env:"EVENTHUB_MAX_BYTES" default:"524288"`
	MaxItems         int    `yaml:"max_items" env:"EVENTHUB_MAX_ITEMS" default:"120"`
}

// OpenSearchConfig is the bulk ECS endpoint
type OpenSearchConfig struct {
	Addresses []string `yaml:"addresses" env:"OPENSEARCH_ADDRESSES"`
	Index     string   `yaml:"index" env:"OPENSEARCH_INDEX" default:"nsg-flowlogs"`
	Username  string   `yaml:"username" env:"OPENSEARCH_USERNAME"`
	Password  string   `yaml:"password" env:"OPENSEARCH_PASSWORD"`
}

// AuditConfig mirrors traffic to an audit container
type AuditConfig struct {
	Account         string `yaml:"account" env:"AUDIT_ACCOUNT"`
	Container       string `yaml:"container" env:"AUDIT_CONTAINER" default:"nsgflow-audit"`
	LogIncomingJSON bool   `yaml:"log_incoming_json" env:"LOG_INCOMING_JSON"`
	LogOutgoing     bool   `yaml:"log_outgoing" env:"LOG_OUTGOING"`
	LogErrorRecords bool   `yaml:"log_error_records" env:"LOG_ERROR_RECORDS"`
}

// Enabled reports whether anything is mirrored
func (a AuditConfig) Enabled() bool {
	return a.LogIncomingJSON || a.LogOutgoing || a.LogErrorRecords
}

// WatchConfig drives the blob watcher
type WatchConfig struct {
	Interval time.Duration  `yaml:"interval" env:"WATCH_INTERVAL" default:"30s"`
	Prefix   string         `yaml:"prefix" env:"WATCH_PREFIX"`
	Filters  FilterConfig   `yaml:"filters"`
	Sharding ShardingConfig `yaml:"sharding"`
}

// FilterConfig contains filtering options
type FilterConfig struct {
	// Date range filters (YYYY-MM-DD format)
	MinDate *string `yaml:"min_date" env:"MIN_DATE"`
	MaxDate *string `yaml:"max_date" env:"MAX_DATE"`

	// Subscription filter, case-insensitive (empty means all)
	Subscriptions []string `yaml:"subscriptions" env:"SUBSCRIPTIONS"`

	// Resource group filter, case-insensitive (empty means all)
	ResourceGroups []string `yaml:"resource_groups" env:"RESOURCE_GROUPS"`

	// NSG name filter - regex patterns (empty means all)
	NSGs []string `yaml:"nsgs" env:"NSGS"`
}

// ShardingConfig contains sharding options
type ShardingConfig struct {
	Enabled     bool `yaml:"enabled" env:"SHARDING_ENABLED" default:"false"`
	ShardsCount int  `yaml:"shards_count" env:"SHARDS_COUNT" default:"1"`
	ShardNumber int  `yaml:"shard_number" env:"SHARD_NUMBER" default:"0"`
}

// LoggingConfig selects the log level and encoding
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// TracingConfig configures the OTLP exporter
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TRACING_ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Protocol    string `yaml:"protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL" default:"grpc"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME" default:"nsgflow"`
}

// MetricsConfig configures the Prometheus listener
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address" env:"METRICS_LISTEN_ADDRESS"`
}

// Validate checks the settings every command needs
func (c *Config) Validate() error {
	if c.Source.Account == "" {
		return configError("source account is required")
	}
	if c.Source.Container == "" {
		return configError("source container is required")
	}

	switch c.State.CheckpointBackend {
	case CheckpointTable:
		if c.State.Account == "" {
			return configError("state account is required for the table checkpoint backend")
		}
	case CheckpointBolt:
		if c.State.BoltPath == "" {
			return configError("bolt_path is required for the bolt checkpoint backend")
		}
	case CheckpointMemory:
	default:
		return configError("invalid checkpoint backend %q, must be 'table', 'bolt' or 'memory'", c.State.CheckpointBackend)
	}

	if c.Kafka.Brokers == "" {
		return configError("kafka brokers are required")
	}
	if c.Kafka.Stage1Topic == "" || c.Kafka.Stage2Topic == "" {
		return configError("stage topics are required")
	}
	if c.Kafka.ConsumerGroup == "" {
		return configError("consumer_group is required")
	}

	if c.Chunking.MaxChunkSize <= 0 {
		return configError("max_chunk_size must be positive")
	}

	if c.Audit.Enabled() && c.Audit.Account == "" {
		return configError("audit account is required when audit logging is enabled")
	}

	if c.Watch.Filters.MinDate != nil {
		if _, err := time.Parse("2006-01-02", *c.Watch.Filters.MinDate); err != nil {
			return configError("min_date must be in YYYY-MM-DD format: %v", err)
		}
	}
	if c.Watch.Filters.MaxDate != nil {
		if _, err := time.Parse("2006-01-02", *c.Watch.Filters.MaxDate); err != nil {
			return configError("max_date must be in YYYY-MM-DD format: %v", err)
		}
	}
	if c.Watch.Sharding.Enabled {
		if c.Watch.Sharding.ShardsCount <= 0 {
			return configError("shards_count must be positive when sharding is enabled")
		}
		if c.Watch.Sharding.ShardNumber < 0 || c.Watch.Sharding.ShardNumber >= c.Watch.Sharding.ShardsCount {
			return configError("shard_number must be between 0 and shards_count-1")
		}
	}

	if c.Tracing.Enabled && c.Tracing.Protocol != "grpc" && c.Tracing.Protocol != "http" {
		return configError("invalid tracing protocol %q, must be 'grpc' or 'http'", c.Tracing.Protocol)
	}

	return nil
}

// ValidateOutput checks the settings of the selected binding only
func (c *Config) ValidateOutput() error {
	o := c.Output
	if o.MaxTransmissionSize <= 0 {
		return configError("max_transmission_size must be positive")
	}

	switch o.Binding {
	case "":
		return configError("output binding is required, permitted values are: %s", strings.Join(Bindings(), ", "))
	case BindingArcSight:
		if o.ArcSight.Address == "" {
			return configError("arcsight.address is required")
		}
	case BindingLogstash:
		if o.Logstash.URL == "" || o.Logstash.User == "" || o.Logstash.Password == "" {
			return configError("logstash.url, logstash.user and logstash.password are required")
		}
	case BindingSplunk:
		if o.Splunk.URL == "" || o.Splunk.Token == "" {
			return configError("splunk.url and splunk.token are required")
		}
	case BindingEventHub:
		if o.EventHub.Brokers == "" || o.EventHub.Topic == "" {
			return configError("eventhub.brokers and eventhub.topic are required")
		}
		if o.EventHub.Format != "ecs" && o.EventHub.Format != "json" {
			return configError("invalid eventhub format %q, must be 'ecs' or 'json'", o.EventHub.Format)
		}
	case BindingOpenSearch:
		if len(o.OpenSearch.Addresses) == 0 || o.OpenSearch.Index == "" {
			return configError("opensearch.addresses and opensearch.index are required")
		}
	default:
		return configError("unknown output binding %q, permitted values are: %s", o.Binding, strings.Join(Bindings(), ", "))
	}
	return nil
}

// Bindings lists the supported output bindings
func Bindings() []string {
	return []string{BindingArcSight, BindingLogstash, BindingSplunk, BindingEventHub, BindingOpenSearch}
}

func configError(format string, args ...any) error {
	return faults.Configuration("config", format, args...)
}

// LoadConfigFromFile loads configuration from a YAML file
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Configuration("config", "failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, faults.Configuration("config", "failed to parse config file %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables with defaults
func LoadConfigFromEnv() (*Config, error) {
	cfg := Config{
		StorageConfig: os.Getenv("NSGFLOW_STORAGE_CONFIG"),
		Source: SourceConfig{
			Account:   os.Getenv("NSG_SOURCE_ACCOUNT"),
			Container: getEnv("BLOB_CONTAINER_NAME", DefaultContainer),
		},
		State: StateConfig{
			Account:           os.Getenv("STATE_ACCOUNT"),
			CheckpointBackend: getEnv("CHECKPOINT_BACKEND", CheckpointTable),
			CheckpointTable:   getEnv("CHECKPOINT_TABLE", "checkpoints"),
			BoltPath:          getEnv("CHECKPOINT_BOLT_PATH", "checkpoints.db"),
		},
		Kafka: KafkaConfig{
			Brokers:         getEnv("KAFKA_BROKERS", "localhost:9092"),
			Stage1Topic:     getEnv("KAFKA_STAGE1_TOPIC", events.TopicStage1),
			Stage2Topic:     getEnv("KAFKA_STAGE2_TOPIC", events.TopicStage2),
			DeadLetterTopic: getEnv("KAFKA_DEAD_LETTER_TOPIC", events.TopicDeadLetter),
			ConsumerGroup:   getEnv("CONSUMER_GROUP", DefaultConsumerGroup),
			Producer: ProducerConfig{
				Acks:           getEnv("KAFKA_PRODUCER_ACKS", "all"),
				FlushTimeoutMs: parseIntEnv("KAFKA_PRODUCER_FLUSH_TIMEOUT_MS", defaultFlushTimeoutMs),
			},
			Consumer: ConsumerConfig{
				AutoOffsetReset: getEnv("KAFKA_CONSUMER_AUTO_OFFSET_RESET", "earliest"),
				PollTimeoutMs:   parseIntEnv("KAFKA_CONSUMER_POLL_TIMEOUT_MS", defaultPollTimeoutMs),
			},
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: parseInt64Env("MAX_CHUNK_SIZE", chunking.DefaultMaxChunkSize),
		},
		Output: OutputConfig{
			Binding:             os.Getenv("OUTPUT_BINDING"),
			MaxTransmissionSize: parseIntEnv("MAX_TRANSMISSION_SIZE", batch.DefaultMaxBytes),
			Timeout:             parseDurationEnv("SINK_TIMEOUT", defaultSinkTimeout),
			ArcSight: ArcSightConfig{
				Address: os.Getenv("ARCSIGHT_ADDRESS"),
			},
			Logstash: LogstashConfig{
				URL:      os.Getenv("LOGSTASH_ADDRESS"),
				User:     os.Getenv("LOGSTASH_HTTP_USER"),
				Password: os.Getenv("LOGSTASH_HTTP_PWD"),
			},
			Splunk: SplunkConfig{
				URL:            os.Getenv("SPLUNK_ADDRESS"),
				Token:          os.Getenv("SPLUNK_TOKEN"),
				CertThumbprint: os.Getenv("SPLUNK_CERT_THUMBPRINT"),
				SourceType:     os.Getenv("SPLUNK_SOURCE_TYPE"),
				MaxItems:       parseIntEnv("SPLUNK_MAX_ITEMS", DefaultSplunkMaxItems),
			},
			EventHub: EventHubConfig{
				Brokers:          os.Getenv("EVENTHUB_BROKERS"),
				Topic:            os.Getenv("EVENTHUB_NAME"),
				ConnectionString: os.Getenv("EVENTHUB_CONNECTION"),
				Format:           getEnv("EVENTHUB_FORMAT", "ecs"),
				MaxBytes:         parseIntEnv("EVENTHUB_MAX_BYTES", batch.DefaultMaxBytes),
				MaxItems:         parseIntEnv("EVENTHUB_MAX_ITEMS", DefaultEventHubItems),
			},
			OpenSearch: OpenSearchConfig{
				Addresses: parseStringSliceEnv("OPENSEARCH_ADDRESSES"),
				Index:     getEnv("OPENSEARCH_INDEX", "nsg-flowlogs"),
				Username:  os.Getenv("OPENSEARCH_USERNAME"),
				Password:  os.Getenv("OPENSEARCH_PASSWORD"),
			},
		},
		Audit: AuditConfig{
			Account:         os.Getenv("AUDIT_ACCOUNT"),
			Container:       getEnv("AUDIT_CONTAINER", DefaultAuditContainer),
			LogIncomingJSON: parseBoolEnv("LOG_INCOMING_JSON", false),
			LogOutgoing:     parseBoolEnv("LOG_OUTGOING", false),
			LogErrorRecords: parseBoolEnv("LOG_ERROR_RECORDS", false),
		},
		Watch: WatchConfig{
			Interval: parseDurationEnv("WATCH_INTERVAL", defaultWatchInterval),
			Prefix:   os.Getenv("WATCH_PREFIX"),
			Filters: FilterConfig{
				MinDate:        getStringPtr(os.Getenv("MIN_DATE")),
				MaxDate:        getStringPtr(os.Getenv("MAX_DATE")),
				Subscriptions:  parseStringSliceEnv("SUBSCRIPTIONS"),
				ResourceGroups: parseStringSliceEnv("RESOURCE_GROUPS"),
				NSGs:           parseStringSliceEnv("NSGS"),
			},
			Sharding: ShardingConfig{
				Enabled:     parseBoolEnv("SHARDING_ENABLED", false),
				ShardsCount: parseIntEnv("SHARDS_COUNT", 1),
				ShardNumber: parseIntEnv("SHARD_NUMBER", 0),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", defaultLogLevel),
			Format: getEnv("LOG_FORMAT", defaultLogFormat),
		},
		Tracing: TracingConfig{
			Enabled:     parseBoolEnv("TRACING_ENABLED", false),
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Protocol:    getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", defaultTracingProtocol),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "nsgflow"),
		},
		Metrics: MetricsConfig{
			ListenAddress: os.Getenv("METRICS_LISTEN_ADDRESS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getStringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func parseStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
		return parsed
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		return parsed
	}
	return defaultValue
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Container == "" {
		cfg.Source.Container = DefaultContainer
	}
	if cfg.State.CheckpointBackend == "" {
		cfg.State.CheckpointBackend = CheckpointTable
	}
	if cfg.State.CheckpointTable == "" {
		cfg.State.CheckpointTable = "checkpoints"
	}
	if cfg.State.BoltPath == "" {
		cfg.State.BoltPath = "checkpoints.db"
	}
	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "localhost:9092"
	}
	if cfg.Kafka.Stage1Topic == "" {
		cfg.Kafka.Stage1Topic = events.TopicStage1
	}
	if cfg.Kafka.Stage2Topic == "" {
		cfg.Kafka.Stage2Topic = events.TopicStage2
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = events.TopicDeadLetter
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = DefaultConsumerGroup
	}
	if cfg.Kafka.Producer.Acks == "" {
		cfg.Kafka.Producer.Acks = "all"
	}
	if cfg.Kafka.Producer.FlushTimeoutMs == 0 {
		cfg.Kafka.Producer.FlushTimeoutMs = defaultFlushTimeoutMs
	}
	if cfg.Kafka.Consumer.AutoOffsetReset == "" {
		cfg.Kafka.Consumer.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.Consumer.PollTimeoutMs == 0 {
		cfg.Kafka.Consumer.PollTimeoutMs = defaultPollTimeoutMs
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = chunking.DefaultMaxChunkSize
	}
	if cfg.Output.MaxTransmissionSize == 0 {
		cfg.Output.MaxTransmissionSize = batch.DefaultMaxBytes
	}
	if cfg.Output.Timeout == 0 {
		cfg.Output.Timeout = defaultSinkTimeout
	}
	if cfg.Output.Splunk.MaxItems == 0 {
		cfg.Output.Splunk.MaxItems = DefaultSplunkMaxItems
	}
	if cfg.Output.EventHub.Format == "" {
		cfg.Output.EventHub.Format = "ecs"
	}
	if cfg.Output.EventHub.MaxBytes == 0 {
		cfg.Output.EventHub.MaxBytes = batch.DefaultMaxBytes
	}
	if cfg.Output.EventHub.MaxItems == 0 {
		cfg.Output.EventHub.MaxItems = DefaultEventHubItems
	}
	if cfg.Output.OpenSearch.Index == "" {
		cfg.Output.OpenSearch.Index = "nsg-flowlogs"
	}
	if cfg.Audit.Container == "" {
		cfg.Audit.Container = DefaultAuditContainer
	}
	if cfg.Watch.Interval == 0 {
		cfg.Watch.Interval = defaultWatchInterval
	}
	if cfg.Watch.Sharding.ShardsCount == 0 {
		cfg.Watch.Sharding.ShardsCount = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
	if cfg.Tracing.Protocol == "" {
		cfg.Tracing.Protocol = defaultTracingProtocol
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "nsgflow"
	}
}
