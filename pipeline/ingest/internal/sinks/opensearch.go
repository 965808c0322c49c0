package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	opensearch "github.com/opensearch-project/opensearch-go/v2"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// OpenSearchSink submits ECS bulk bodies to one index
type OpenSearchSink struct {
	client *opensearch.Client
	index  string
}

// NewOpenSearchSink creates the OpenSearch client
func NewOpenSearchSink(cfg config.OpenSearchConfig) (*OpenSearchSink, error) {
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}
	return &OpenSearchSink{client: client, index: cfg.Index}, nil
}

func (s *OpenSearchSink) Name() string { return config.BindingOpenSearch }

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Send posts one bulk body; a rejected item fails the whole payload
func (s *OpenSearchSink) Send(ctx context.Context, payload []byte) error {
	res, err := s.client.Bulk(
		bytes.NewReader(payload),
		s.client.Bulk.WithIndex(s.index),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return faults.Transport("sinks.opensearch", "bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return faults.Transport("sinks.opensearch", "bulk request rejected: %s", res.String())
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return faults.Transport("sinks.opensearch", "failed to read bulk response: %w", err)
	}
	var parsed bulkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return faults.Transport("sinks.opensearch", "failed to decode bulk response: %w", err)
	}
	if !parsed.Errors {
		return nil
	}

	failed := 0
	reason := ""
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error != nil {
				failed++
				if reason == "" {
					reason = result.Error.Type + ": " + result.Error.Reason
				}
			}
		}
	}
	return faults.Transport("sinks.opensearch", "%d of %d documents rejected, first: %s", failed, len(parsed.Items), reason)
}

// Close is a no-op; the client holds no dedicated connections
func (s *OpenSearchSink) Close() error { return nil }
