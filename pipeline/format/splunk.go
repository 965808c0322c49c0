package format

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
)

// DefaultSplunkSourceType tags every HEC event
const DefaultSplunkSourceType = "amdl:nsg:flowlogs"

type splunkEvent struct {
	SourceType string                     `json:"sourcetype"`
	Time       json.Number                `json:"time"`
	Event      flowlog.DenormalizedRecord `json:"event"`
}

// Splunk renders HTTP Event Collector envelopes; a batch is the plain
// concatenation of events.
type Splunk struct {
	SourceType string
}

func (Splunk) Name() string        { return KindSplunk }
func (Splunk) ItemOverhead() int   { return 0 }
func (Splunk) FrameOverhead() int  { return 0 }
func (Splunk) ContentType() string { return "application/json" }

// Convert wraps the record with its sourcetype and epoch time in seconds
func (s Splunk) Convert(rec flowlog.DenormalizedRecord) ([]byte, error) {
	ts, err := rec.Timestamp()
	if err != nil {
		return nil, err
	}
	epoch := fmt.Sprintf("%d.%07d", ts.Unix(), ts.Nanosecond()/100)

	return json.Marshal(splunkEvent{
		SourceType: s.SourceType,
		Time:       json.Number(epoch),
		Event:      rec,
	})
}

// Frame concatenates events
func (Splunk) Frame(items [][]byte) []byte {
	return bytes.Join(items, nil)
}
