// Package sinks delivers framed payloads to the configured collector.
package sinks

import (
	"context"
	"fmt"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/batch"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/format"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/ingest/internal/config"
)

// Sink sends one framed payload per call. A nil error means the collector
// accepted the payload; failures are faults.Transport errors.
type Sink interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Output bundles the sink with the converter and batch limits of its binding
type Output struct {
	Sink      Sink
	Converter format.Converter
	Limits    batch.Limits
}

// Close releases the sink
func (o *Output) Close() error {
	if o == nil || o.Sink == nil {
		return nil
	}
	return o.Sink.Close()
}

// NewOutput builds the output of the configured binding
func NewOutput(cfg config.OutputConfig, opts format.Options) (*Output, error) {
	if opts.SplunkSourceType == "" {
		opts.SplunkSourceType = cfg.Splunk.SourceType
	}

	kind, limits := converterFor(cfg)
	converter, err := format.New(kind, opts)
	if err != nil {
		return nil, err
	}

	var sink Sink
	switch cfg.Binding {
	case config.BindingArcSight:
		sink = NewTCPSink(cfg.ArcSight.Address, cfg.Timeout)
	case config.BindingLogstash:
		sink = NewLogstashSink(cfg.Logstash, converter.ContentType(), cfg.Timeout)
	case config.BindingSplunk:
		sink, err = NewSplunkSink(cfg.Splunk, cfg.Timeout)
	case config.BindingEventHub:
		sink, err = NewEventHubSink(cfg.EventHub)
	case config.BindingOpenSearch:
		sink, err = NewOpenSearchSink(cfg.OpenSearch)
	default:
		return nil, fmt.Errorf("unsupported output binding %q", cfg.Binding)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s sink: %w", cfg.Binding, err)
	}

	return &Output{Sink: sink, Converter: converter, Limits: limits.WithDefaults()}, nil
}

// converterFor maps a binding to its converter kind and batch limits
func converterFor(cfg config.OutputConfig) (string, batch.Limits) {
	limits := batch.Limits{MaxBytes: cfg.MaxTransmissionSize}
	switch cfg.Binding {
	case config.BindingArcSight:
		return format.KindCEF, limits
	case config.BindingSplunk:
		limits.MaxItems = cfg.Splunk.MaxItems
		return format.KindSplunk, limits
	case config.BindingEventHub:
		limits = batch.Limits{MaxBytes: cfg.EventHub.MaxBytes, MaxItems: cfg.EventHub.MaxItems}
		if cfg.EventHub.Format == format.KindJSON {
			return format.KindJSON, limits
		}
		return format.KindECS, limits
	case config.BindingOpenSearch:
		return format.KindECSBulk, limits
	default:
		return format.KindJSON, limits
	}
}
