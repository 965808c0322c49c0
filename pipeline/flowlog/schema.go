// Package flowlog models NSG flow-log documents and flattens them into one
// record per flow tuple.
package flowlog

import (
	"encoding/json"
	"strconv"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// SchemaVersion is the flow-log schema version declared by each record.
// It is written back out with one decimal (2.0, 1.0).
type SchemaVersion float64

// MarshalJSON renders the version with a single fractional digit
func (v SchemaVersion) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(v), 'f', 1, 64)), nil
}

// String returns the version formatted as 0.0
func (v SchemaVersion) String() string {
	return strconv.FormatFloat(float64(v), 'f', 1, 64)
}

// HasFlowState reports whether tuples of this version carry flow state
func (v SchemaVersion) HasFlowState() bool {
	return v >= 2.0
}

// Document is the top-level shape of a flow-log blob or chunk
type Document struct {
	Records []Record `json:"records"`
}

// Record is one per-minute NSG record
type Record struct {
	Time          string     `json:"time"`
	SystemID      string     `json:"systemId"`
	MACAddress    string     `json:"macAddress"`
	Category      string     `json:"category"`
	ResourceID    string     `json:"resourceId"`
	OperationName string     `json:"operationName"`
	Properties    Properties `json:"properties"`
}

// Properties carries the schema version and the per-rule flows
type Properties struct {
	Version SchemaVersion `json:"Version"`
	Flows   []RuleFlows   `json:"flows"`
}

// RuleFlows groups the flows matched by one NSG rule
type RuleFlows struct {
	Rule  string     `json:"rule"`
	Flows []MACFlows `json:"flows"`
}

// MACFlows groups the tuples observed on one network interface
type MACFlows struct {
	MAC        string   `json:"mac"`
	FlowTuples []string `json:"flowTuples"`
}

// Decode parses a {"records":[...]} document
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, faults.Parse("flowlog.decode", "invalid flow-log document: %v", err)
	}
	return &doc, nil
}
