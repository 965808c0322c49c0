package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

func validConfig() *Config {
	cfg := &Config{
		Source: SourceConfig{Account: "source"},
		State:  StateConfig{Account: "state"},
	}
	applyDefaults(cfg)
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:        "missing source account",
			mutate:      func(c *Config) { c.Source.Account = "" },
			expectError: true,
		},
		{
			name:        "table backend without state account",
			mutate:      func(c *Config) { c.State.Account = "" },
			expectError: true,
		},
		{
			name: "bolt backend needs no state account",
			mutate: func(c *Config) {
				c.State.Account = ""
				c.State.CheckpointBackend = CheckpointBolt
			},
		},
		{
			name:        "unknown checkpoint backend",
			mutate:      func(c *Config) { c.State.CheckpointBackend = "redis" },
			expectError: true,
		},
		{
			name:        "non-positive chunk size",
			mutate:      func(c *Config) { c.Chunking.MaxChunkSize = -1 },
			expectError: true,
		},
		{
			name:        "audit without account",
			mutate:      func(c *Config) { c.Audit.LogOutgoing = true },
			expectError: true,
		},
		{
			name:        "invalid date filter",
			mutate:      func(c *Config) { c.Watch.Filters.MinDate = stringPtr("15/06/2024") },
			expectError: true,
		},
		{
			name: "invalid sharding config",
			mutate: func(c *Config) {
				c.Watch.Sharding = ShardingConfig{Enabled: true, ShardsCount: 2, ShardNumber: 2}
			},
			expectError: true,
		},
		{
			name: "invalid tracing protocol",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Protocol = "udp"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, faults.Is(err, faults.KindConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateOutput(t *testing.T) {
	tests := []struct {
		name        string
		output      func(o *OutputConfig)
		expectError bool
	}{
		{
			name:        "no binding",
			output:      func(o *OutputConfig) {},
			expectError: true,
		},
		{
			name:        "unknown binding",
			output:      func(o *OutputConfig) { o.Binding = "syslog" },
			expectError: true,
		},
		{
			name: "arcsight",
			output: func(o *OutputConfig) {
				o.Binding = BindingArcSight
				o.ArcSight.Address = "collector:1514"
			},
		},
		{
			name:        "arcsight without address",
			output:      func(o *OutputConfig) { o.Binding = BindingArcSight },
			expectError: true,
		},
		{
			name: "logstash without password",
			output: func(o *OutputConfig) {
				o.Binding = BindingLogstash
				o.Logstash = LogstashConfig{URL: "https://ls:8080", User: "u"}
			},
			expectError: true,
		},
		{
			name: "splunk",
			output: func(o *OutputConfig) {
				o.Binding = BindingSplunk
				o.Splunk.URL = "https://hec:8088/services/collector"
				o.Splunk.Token = "token"
			},
		},
		{
			name: "splunk settings are not required for other bindings",
			output: func(o *OutputConfig) {
				o.Binding = BindingOpenSearch
				o.OpenSearch.Addresses = []string{"http://os:9200"}
			},
		},
		{
			name: "eventhub with bad format",
			output: func(o *OutputConfig) {
				o.Binding = BindingEventHub
				o.EventHub.Brokers = "ns.servicebus.windows.net:9093"
				o.EventHub.Topic = "nsg"
				o.EventHub.Format = "cef"
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.output(&cfg.Output)
			err := cfg.ValidateOutput()
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, faults.Is(err, faults.KindConfiguration))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	content := `
source:
  account: source
state:
  checkpoint_backend: bolt
  bolt_path: /var/lib/nsgflow/checkpoints.db
kafka:
  brokers: kafka:9092
chunking:
  max_chunk_size: 51200
output:
  binding: splunk
  splunk:
    url: https://hec:8088/services/collector
    token: abc
    cert_thumbprint: 0123456789ABCDEF
watch:
  interval: 45s
  filters:
    nsgs: ["^NSG-WEB"]
logging:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "nsgflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultContainer, cfg.Source.Container)
	assert.Equal(t, CheckpointBolt, cfg.State.CheckpointBackend)
	assert.Equal(t, "kafka:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "stage1", cfg.Kafka.Stage1Topic)
	assert.Equal(t, "stage2", cfg.Kafka.Stage2Topic)
	assert.Equal(t, int64(51200), cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 524288, cfg.Output.MaxTransmissionSize)
	assert.Equal(t, DefaultSplunkMaxItems, cfg.Output.Splunk.MaxItems)
	assert.Equal(t, "0123456789ABCDEF", cfg.Output.Splunk.CertThumbprint)
	assert.Equal(t, 45*time.Second, cfg.Watch.Interval)
	assert.Equal(t, []string{"^NSG-WEB"}, cfg.Watch.Filters.NSGs)
	assert.Equal(t, "json", cfg.Logging.Format)
	require.NoError(t, cfg.ValidateOutput())
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindConfiguration))

	path := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state:\n  checkpoint_backend: [\n"), 0o600))
	_, err = LoadConfigFromFile(path)
	assert.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("loads settings from environment", func(t *testing.T) {
		t.Setenv("NSG_SOURCE_ACCOUNT", "source")
		t.Setenv("STATE_ACCOUNT", "state")
		t.Setenv("KAFKA_BROKERS", "kafka:9092")
		t.Setenv("OUTPUT_BINDING", "logstash")
		t.Setenv("LOGSTASH_ADDRESS", "https://ls:8080")
		t.Setenv("LOGSTASH_HTTP_USER", "user")
		t.Setenv("LOGSTASH_HTTP_PWD", "pwd")
		t.Setenv("LOG_INCOMING_JSON", "true")
		t.Setenv("AUDIT_ACCOUNT", "state")
		t.Setenv("NSGS", "nsg-a, nsg-b")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "source", cfg.Source.Account)
		assert.Equal(t, "kafka:9092", cfg.Kafka.Brokers)
		assert.Equal(t, BindingLogstash, cfg.Output.Binding)
		assert.True(t, cfg.Audit.LogIncomingJSON)
		assert.Equal(t, []string{"nsg-a", "nsg-b"}, cfg.Watch.Filters.NSGs)
		assert.NoError(t, cfg.ValidateOutput())
	})

	t.Run("applies defaults correctly", func(t *testing.T) {
		t.Setenv("NSG_SOURCE_ACCOUNT", "source")
		t.Setenv("STATE_ACCOUNT", "state")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, DefaultContainer, cfg.Source.Container)
		assert.Equal(t, CheckpointTable, cfg.State.CheckpointBackend)
		assert.Equal(t, "localhost:9092", cfg.Kafka.Brokers)
		assert.Equal(t, "stage-deadletter", cfg.Kafka.DeadLetterTopic)
		assert.Equal(t, int64(102400), cfg.Chunking.MaxChunkSize)
		assert.Equal(t, DefaultEventHubItems, cfg.Output.EventHub.MaxItems)
		assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("fails without source account", func(t *testing.T) {
		t.Setenv("NSG_SOURCE_ACCOUNT", "")
		_, err := LoadConfigFromEnv()
		require.Error(t, err)
		assert.True(t, faults.Is(err, faults.KindConfiguration))
	})
}

func TestParseStringSliceEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		expected []string
	}{
		{
			name:     "empty string returns nil slice",
			envVar:   "",
			expected: nil,
		},
		{
			name:     "single item",
			envVar:   "item1",
			expected: []string{"item1"},
		},
		{
			name:     "items with spaces",
			envVar:   "item1, item2 , item3",
			expected: []string{"item1", "item2", "item3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_SLICE", tt.envVar)
			assert.Equal(t, tt.expected, parseStringSliceEnv("TEST_SLICE"))
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, parseDurationEnv("TEST_DURATION", 30*time.Second))

	t.Setenv("TEST_DURATION", "invalid")
	assert.Equal(t, 30*time.Second, parseDurationEnv("TEST_DURATION", 30*time.Second))
}

// Helper function
func stringPtr(s string) *string {
	return &s
}
