package flowlog

import (
	"strings"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// DenormalizedRecord is one flow tuple together with the record, rule and
// interface it was observed under. Empty fields are omitted when serialized.
type DenormalizedRecord struct {
	Time          string        `json:"time,omitempty"`
	Category      string        `json:"category,omitempty"`
	OperationName string        `json:"operationName,omitempty"`
	ResourceID    string        `json:"resourceId,omitempty"`
	Version       SchemaVersion `json:"version"`
	NSGRuleName   string        `json:"nsgRuleName,omitempty"`
	MAC           string        `json:"mac,omitempty"`

	StartTime          string `json:"startTime,omitempty"`
	SourceAddress      string `json:"sourceAddress,omitempty"`
	DestinationAddress string `json:"destinationAddress,omitempty"`
	SourcePort         string `json:"sourcePort,omitempty"`
	DestinationPort    string `json:"destinationPort,omitempty"`
	TransportProtocol  string `json:"transportProtocol,omitempty"`
	DeviceDirection    string `json:"deviceDirection,omitempty"`
	DeviceAction       string `json:"deviceAction,omitempty"`

	FlowState   string `json:"flowState,omitempty"`
	PacketsStoD string `json:"packetsStoD,omitempty"`
	BytesStoD   string `json:"bytesStoD,omitempty"`
	PacketsDtoS string `json:"packetsDtoS,omitempty"`
	BytesDtoS   string `json:"bytesDtoS,omitempty"`
}

// NewDenormalizedRecord combines a parsed tuple with its enclosing context
func NewDenormalizedRecord(rec Record, rule, mac string, t Tuple) DenormalizedRecord {
	d := DenormalizedRecord{
		Time:               rec.Time,
		Category:           rec.Category,
		OperationName:      rec.OperationName,
		ResourceID:         rec.ResourceID,
		Version:            rec.Properties.Version,
		NSGRuleName:        rule,
		MAC:                mac,
		StartTime:          t.StartTime,
		SourceAddress:      t.SourceAddress,
		DestinationAddress: t.DestinationAddress,
		SourcePort:         t.SourcePort,
		DestinationPort:    t.DestinationPort,
		TransportProtocol:  t.TransportProtocol,
		DeviceDirection:    t.DeviceDirection,
		DeviceAction:       t.DeviceAction,
	}
	if d.Version.HasFlowState() {
		d.FlowState = t.FlowState
		if t.HasCounters() {
			d.PacketsStoD = t.PacketsStoD
			d.BytesStoD = t.BytesStoD
			d.PacketsDtoS = t.PacketsDtoS
			d.BytesDtoS = t.BytesDtoS
		}
	}
	return d
}

// HasCounters reports whether the packet and byte counters are set
func (d DenormalizedRecord) HasCounters() bool {
	return d.Version.HasFlowState() && d.FlowState != "" && d.FlowState != FlowStateBegin
}

// Inbound reports whether the flow was observed entering the interface
func (d DenormalizedRecord) Inbound() bool {
	return d.DeviceDirection == "I"
}

// Timestamp parses the record time (ISO-8601, up to 9 fractional digits)
func (d DenormalizedRecord) Timestamp() (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, d.Time)
	if err != nil {
		return time.Time{}, faults.Parse("flowlog.time", "unparsable record time %q: %v", d.Time, err)
	}
	return ts.UTC(), nil
}

// DelimitedMAC renders the 12-digit interface MAC as colon-separated pairs
func (d DenormalizedRecord) DelimitedMAC() (string, error) {
	if len(d.MAC) != 12 {
		return "", faults.Parse("flowlog.mac", "mac address %q must have 12 characters", d.MAC)
	}
	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(d.MAC[i : i+2])
	}
	return b.String(), nil
}

// DeviceExternalID returns subscription/resourceGroup/resourceName
func (d DenormalizedRecord) DeviceExternalID() (string, error) {
	id, err := ParseResourceID(d.ResourceID)
	if err != nil {
		return "", err
	}
	return id.Subscription + "/" + id.ResourceGroup + "/" + id.Name, nil
}

// ResourceID is the decomposed ARM id of the flow-log's security group:
// /SUBSCRIPTIONS/{sub}/RESOURCEGROUPS/{rg}/PROVIDERS/{namespace}/{type}/{name}
type ResourceID struct {
	Subscription  string
	ResourceGroup string
	Namespace     string
	Type          string
	Name          string
}

// ParseResourceID splits an ARM resource id at fixed positions
func ParseResourceID(raw string) (ResourceID, error) {
	parts := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	if len(parts) < 8 ||
		!strings.EqualFold(parts[0], "SUBSCRIPTIONS") ||
		!strings.EqualFold(parts[2], "RESOURCEGROUPS") ||
		!strings.EqualFold(parts[4], "PROVIDERS") {
		return ResourceID{}, faults.Parse("flowlog.resource_id", "unexpected resource id layout %q", raw)
	}
	id := ResourceID{
		Subscription:  parts[1],
		ResourceGroup: parts[3],
		Namespace:     parts[5],
		Type:          parts[6],
		Name:          parts[7],
	}
	if id.Subscription == "" || id.ResourceGroup == "" || id.Name == "" {
		return ResourceID{}, faults.Parse("flowlog.resource_id", "empty segment in resource id %q", raw)
	}
	return id, nil
}
