package flowlog

import (
	"strings"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

const (
	v1FieldCount      = 8
	v2BeginFieldCount = 9
	v2FieldCount      = 13
)

// Flow states carried by version 2 tuples
const (
	FlowStateBegin      = "B"
	FlowStateContinuing = "C"
	FlowStateEnd        = "E"
)

// Tuple is one parsed flow tuple. Counter fields are empty when the tuple
// does not carry them; a present counter is never empty.
type Tuple struct {
	StartTime          string
	SourceAddress      string
	DestinationAddress string
	SourcePort         string
	DestinationPort    string
	TransportProtocol  string
	DeviceDirection    string
	DeviceAction       string

	FlowState   string
	PacketsStoD string
	BytesStoD   string
	PacketsDtoS string
	BytesDtoS   string
}

// HasCounters reports whether the packet and byte counters are set
func (t Tuple) HasCounters() bool {
	return t.FlowState != "" && t.FlowState != FlowStateBegin
}

// ParseTuple splits a comma-delimited flow tuple according to the declared version
func ParseTuple(raw string, version SchemaVersion) (Tuple, error) {
	parts := strings.Split(raw, ",")

	if !version.HasFlowState() {
		if len(parts) != v1FieldCount {
			return Tuple{}, faults.Parse("flowlog.tuple", "version %s tuple needs %d fields, got %d: %q",
				version, v1FieldCount, len(parts), raw)
		}
		return baseTuple(parts), nil
	}

	if len(parts) < v2BeginFieldCount {
		return Tuple{}, faults.Parse("flowlog.tuple", "version %s tuple needs at least %d fields, got %d: %q",
			version, v2BeginFieldCount, len(parts), raw)
	}

	t := baseTuple(parts)
	t.FlowState = parts[8]

	switch t.FlowState {
	case FlowStateBegin:
		// Writers may pad begin tuples with four empty counter slots
		if len(parts) != v2BeginFieldCount && len(parts) != v2FieldCount {
			return Tuple{}, faults.Parse("flowlog.tuple", "begin tuple needs %d or %d fields, got %d: %q",
				v2BeginFieldCount, v2FieldCount, len(parts), raw)
		}
		for _, slot := range parts[v2BeginFieldCount:] {
			if slot != "" {
				return Tuple{}, faults.Parse("flowlog.tuple", "begin tuple carries counters: %q", raw)
			}
		}
	case FlowStateContinuing, FlowStateEnd:
		if len(parts) != v2FieldCount {
			return Tuple{}, faults.Parse("flowlog.tuple", "flow state %s tuple needs %d fields, got %d: %q",
				t.FlowState, v2FieldCount, len(parts), raw)
		}
		t.PacketsStoD = counter(parts[9])
		t.BytesStoD = counter(parts[10])
		t.PacketsDtoS = counter(parts[11])
		t.BytesDtoS = counter(parts[12])
	default:
		return Tuple{}, faults.Parse("flowlog.tuple", "unknown flow state %q: %q", t.FlowState, raw)
	}

	return t, nil
}

func baseTuple(parts []string) Tuple {
	return Tuple{
		StartTime:          parts[0],
		SourceAddress:      parts[1],
		DestinationAddress: parts[2],
		SourcePort:         parts[3],
		DestinationPort:    parts[4],
		TransportProtocol:  parts[5],
		DeviceDirection:    parts[6],
		DeviceAction:       parts[7],
	}
}

func counter(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
