package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
)

// ECS field constants
const (
	ECSAgentName = "AzureNetworkWatcherNSGFlowLogsConnector"
	ECSVersion   = "1.0.0"
	ECSDataset   = "nsg.access"

	ecsIngestedLayout = "2006-01-02T15:04:05.0000000Z"
)

// ECSDocument is an Elastic Common Schema rendering of one flow record
type ECSDocument struct {
	Timestamp   string      `json:"@timestamp"`
	Agent       ECSAgent    `json:"agent"`
	Rule        ECSRule     `json:"rule"`
	ECS         ECSMeta     `json:"ecs"`
	Client      ECSClient   `json:"client"`
	Event       ECSEvent    `json:"event"`
	Resource    ECSResource `json:"resource"`
	Source      ECSEndpoint `json:"source"`
	Destination ECSEndpoint `json:"destination"`
	Network     ECSNetwork  `json:"network"`
}

type ECSAgent struct {
	Name string `json:"name"`
}

type ECSRule struct {
	Name string `json:"name,omitempty"`
}

type ECSMeta struct {
	Version string `json:"version"`
}

type ECSClient struct {
	MAC string `json:"mac,omitempty"`
}

type ECSEvent struct {
	Category string `json:"category,omitempty"`
	Action   string `json:"action,omitempty"`
	Outcome  string `json:"outcome"`
	Start    string `json:"start,omitempty"`
	Dataset  string `json:"dataset"`
	Ingested string `json:"ingested"`
}

type ECSResource struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	NSG          string `json:"nsg"`
}

// ECSEndpoint describes either side of the flow
type ECSEndpoint struct {
	Address string `json:"address,omitempty"`
	IP      string `json:"ip,omitempty"`
	Port    string `json:"port,omitempty"`
	Packets string `json:"packets,omitempty"`
	Bytes   string `json:"bytes,omitempty"`
}

type ECSNetwork struct {
	Transport string `json:"transport"`
	Direction string `json:"direction"`
	Protocol  string `json:"protocol"`
	Bytes     string `json:"bytes,omitempty"`
	Packets   string `json:"packets,omitempty"`
	FlowState string `json:"flowstate,omitempty"`
}

// NewECSDocument maps a record onto ECS fields; ingested is the event.ingested stamp
func NewECSDocument(rec flowlog.DenormalizedRecord, ingested time.Time) (ECSDocument, error) {
	// resource.subscription and resource.nsg come from fixed positions of the
	// slash-split id: /SUBSCRIPTIONS/{2}/RESOURCEGROUPS/{4}/PROVIDERS/{6}/{7}/{8}
	parts := strings.Split(rec.ResourceID, "/")
	if len(parts) < 9 {
		return ECSDocument{}, faults.Parse("format.ecs", "unexpected resource id layout %q", rec.ResourceID)
	}

	doc := ECSDocument{
		Timestamp: rec.Time,
		Agent:     ECSAgent{Name: ECSAgentName},
		Rule:      ECSRule{Name: rec.NSGRuleName},
		ECS:       ECSMeta{Version: ECSVersion},
		Client:    ECSClient{MAC: rec.MAC},
		Event: ECSEvent{
			Category: rec.Category,
			Action:   rec.OperationName,
			Outcome:  "denied",
			Start:    rec.StartTime,
			Dataset:  ECSDataset,
			Ingested: ingested.UTC().Format(ecsIngestedLayout),
		},
		Resource: ECSResource{
			ID:           rec.ResourceID,
			Subscription: parts[2],
			NSG:          parts[8],
		},
		Source: ECSEndpoint{
			Address: rec.SourceAddress,
			IP:      rec.SourceAddress,
			Port:    rec.SourcePort,
			Packets: rec.PacketsStoD,
			Bytes:   rec.BytesStoD,
		},
		Destination: ECSEndpoint{
			Address: rec.DestinationAddress,
			IP:      rec.DestinationAddress,
			Port:    rec.DestinationPort,
			Packets: rec.PacketsDtoS,
			Bytes:   rec.BytesDtoS,
		},
		Network: ECSNetwork{
			Transport: "tcp",
			Direction: "outbound",
			Protocol:  "transport",
			FlowState: rec.FlowState,
		},
	}

	if rec.DeviceAction == "A" {
		doc.Event.Outcome = "allowed"
	}
	if rec.TransportProtocol == "U" {
		doc.Network.Transport = "udp"
	}
	if rec.Inbound() {
		doc.Network.Direction = "inbound"
	}

	if rec.HasCounters() {
		var err error
		if doc.Network.Bytes, err = sumCounters(rec.BytesStoD, rec.BytesDtoS); err != nil {
			return ECSDocument{}, err
		}
		if doc.Network.Packets, err = sumCounters(rec.PacketsStoD, rec.PacketsDtoS); err != nil {
			return ECSDocument{}, err
		}
	}

	return doc, nil
}

// ECS renders ECS documents framed as a {"records":[...]} bundle
type ECS struct {
	Now func() time.Time
}

func (ECS) Name() string        { return KindECS }
func (ECS) ItemOverhead() int   { return 1 }
func (ECS) FrameOverhead() int  { return len(bundleHead) + len(bundleTail) }
func (ECS) ContentType() string { return "application/json" }

func (e ECS) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Convert renders one ECS document
func (e ECS) Convert(rec flowlog.DenormalizedRecord) ([]byte, error) {
	doc, err := NewECSDocument(rec, e.now())
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Frame wraps documents in a records bundle
func (ECS) Frame(items [][]byte) []byte {
	return frameBundle(items)
}

var bulkAction = []byte(`{"index":{}}` + "\n")

// ECSBulk renders ECS documents as newline-delimited bulk index requests
type ECSBulk struct {
	ECS ECS
}

func (ECSBulk) Name() string        { return KindECSBulk }
func (ECSBulk) ItemOverhead() int   { return len(bulkAction) + 1 }
func (ECSBulk) FrameOverhead() int  { return 0 }
func (ECSBulk) ContentType() string { return "application/x-ndjson" }

// Convert renders one ECS document
func (b ECSBulk) Convert(rec flowlog.DenormalizedRecord) ([]byte, error) {
	return b.ECS.Convert(rec)
}

// Frame prefixes every document with an index action line
func (ECSBulk) Frame(items [][]byte) []byte {
	var out bytes.Buffer
	for _, it := range items {
		out.Write(bulkAction)
		out.Write(it)
		out.WriteByte('\n')
	}
	return out.Bytes()
}
