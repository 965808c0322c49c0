package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	resourceID  = "/SUBSCRIPTIONS/F087A016-314D-482C-93F1-88665DAFBA23/RESOURCEGROUPS/MC_MDRNWRK-DEV-AKS-RESOURCES/PROVIDERS/MICROSOFT.NETWORK/NETWORKSECURITYGROUPS/AKS-AGENTPOOL-14244569-NSG"
	v2TupleTCP  = "1578673962,10.244.0.40,10.244.1.68,36098,25227,T,I,A,E,3,206,2,140"
	v2TupleUDP  = "1578673962,10.244.0.40,10.244.1.68,36098,25227,U,O,D,C,10,1300,9,600"
	v1TupleDeny = "1487191405,13.67.143.118,10.0.0.4,44931,443,T,I,D"
)

var fixedNow = time.Date(2020, 1, 15, 7, 1, 2, 345678900, time.UTC)

func record(t *testing.T, version flowlog.SchemaVersion, tuple string) flowlog.DenormalizedRecord {
	t.Helper()
	parsed, err := flowlog.ParseTuple(tuple, version)
	require.NoError(t, err)
	rec := flowlog.Record{
		Time:          "2020-01-15T07:00:00.5173253Z",
		Category:      "NetworkSecurityGroupFlowEvent",
		OperationName: "NetworkSecurityGroupFlowEvents",
		ResourceID:    resourceID,
		Properties:    flowlog.Properties{Version: version},
	}
	return flowlog.NewDenormalizedRecord(rec, "DefaultRule_AllowVnetOutBound", "000D3A5F1340", parsed)
}

func newConverter(t *testing.T, kind string) Converter {
	t.Helper()
	c, err := New(kind, Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return c
}

func TestECS_InboundTCPAllowed(t *testing.T) {
	doc, err := NewECSDocument(record(t, 2, v2TupleTCP), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "2020-01-15T07:00:00.5173253Z", doc.Timestamp)
	assert.Equal(t, "AzureNetworkWatcherNSGFlowLogsConnector", doc.Agent.Name)
	assert.Equal(t, "DefaultRule_AllowVnetOutBound", doc.Rule.Name)
	assert.Equal(t, "1.0.0", doc.ECS.Version)
	assert.Equal(t, "000D3A5F1340", doc.Client.MAC)

	assert.Equal(t, "NetworkSecurityGroupFlowEvent", doc.Event.Category)
	assert.Equal(t, "NetworkSecurityGroupFlowEvents", doc.Event.Action)
	assert.Equal(t, "allowed", doc.Event.Outcome)
	assert.Equal(t, "1578673962", doc.Event.Start)
	assert.Equal(t, "nsg.access", doc.Event.Dataset)
	assert.Equal(t, "2020-01-15T07:01:02.3456789Z", doc.Event.Ingested)

	assert.Equal(t, resourceID, doc.Resource.ID)
	assert.Equal(t, "F087A016-314D-482C-93F1-88665DAFBA23", doc.Resource.Subscription)
	assert.Equal(t, "AKS-AGENTPOOL-14244569-NSG", doc.Resource.NSG)

	assert.Equal(t, ECSEndpoint{Address: "10.244.0.40", IP: "10.244.0.40", Port: "36098", Packets: "3", Bytes: "206"}, doc.Source)
	assert.Equal(t, ECSEndpoint{Address: "10.244.1.68", IP: "10.244.1.68", Port: "25227", Packets: "2", Bytes: "140"}, doc.Destination)

	assert.Equal(t, ECSNetwork{
		Transport: "tcp",
		Direction: "inbound",
		Protocol:  "transport",
		Bytes:     "346",
		Packets:   "5",
		FlowState: "E",
	}, doc.Network)
}

func TestECS_OutboundUDPDenied(t *testing.T) {
	doc, err := NewECSDocument(record(t, 2, v2TupleUDP), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "udp", doc.Network.Transport)
	assert.Equal(t, "outbound", doc.Network.Direction)
	assert.Equal(t, "denied", doc.Event.Outcome)
	assert.Equal(t, "1900", doc.Network.Bytes)
	assert.Equal(t, "19", doc.Network.Packets)
	assert.Equal(t, "C", doc.Network.FlowState)
}

func TestECS_BeginFlowOmitsCounters(t *testing.T) {
	c := newConverter(t, KindECS)
	out, err := c.Convert(record(t, 2, "1578673962,10.244.0.40,10.244.1.68,36098,25227,T,I,A,B"))
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(out, &generic))
	network := generic["network"].(map[string]any)
	source := generic["source"].(map[string]any)
	assert.NotContains(t, network, "bytes")
	assert.NotContains(t, network, "packets")
	assert.Equal(t, "B", network["flowstate"])
	assert.NotContains(t, source, "bytes")
}

func TestECS_ShortResourceID(t *testing.T) {
	rec := record(t, 2, v2TupleTCP)
	rec.ResourceID = "/SUBSCRIPTIONS/abc/RESOURCEGROUPS/rg"
	_, err := NewECSDocument(rec, fixedNow)
	assert.True(t, faults.Is(err, faults.KindParse))
}

func TestCEF_Version1OmitsFlowStateFields(t *testing.T) {
	c := newConverter(t, KindCEF)
	rec := record(t, 1, v1TupleDeny)
	rec.Time = "2017-08-09T00:13:25.4850000Z"
	rec.NSGRuleName = "DefaultRule_DenyAllInBound"

	out, err := c.Convert(rec)
	require.NoError(t, err)

	expected := "Aug 09 00:13:25 host CEF:0|Microsoft.Network|NETWORKSECURITYGROUPS|1.0|NetworkSecurityGroupFlowEvent|NetworkSecurityGroupFlowEvents|1|" +
		"deviceExternalId=F087A016-314D-482C-93F1-88665DAFBA23/MC_MDRNWRK-DEV-AKS-RESOURCES/AKS-AGENTPOOL-14244569-NSG " +
		"cs1=DefaultRule_DenyAllInBound cs1Label=NSGRuleName dmac=00:0D:3A:5F:13:40 " +
		"rt=1487191405000 src=13.67.143.118 dst=10.0.0.4 spt=44931 dpt=443 proto=TCP deviceDirection=0 act=D"
	assert.Equal(t, expected, string(out))

	for _, field := range []string{"cs2", "cn1", "cn2", "bytesIn", "bytesOut"} {
		assert.NotContains(t, string(out), field)
	}
}

func TestCEF_Version2Counters(t *testing.T) {
	c := newConverter(t, KindCEF)

	inbound, err := c.Convert(record(t, 2, v2TupleTCP))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(inbound),
		"proto=TCP deviceDirection=0 act=A cs2=E cs2Label=FlowState cn1=3 cn1Label=PacketsStoD cn2=2 cn2Label=PacketsDtoS bytesIn=206 bytesOut=140"),
		string(inbound))
	assert.Contains(t, string(inbound), "|2.0|")

	outbound, err := c.Convert(record(t, 2, v2TupleUDP))
	require.NoError(t, err)
	assert.Contains(t, string(outbound), " smac=00:0D:3A:5F:13:40 ")
	assert.True(t, strings.HasSuffix(string(outbound),
		"proto=UDP deviceDirection=1 act=D cs2=C cs2Label=FlowState cn1=10 cn1Label=PacketsStoD cn2=9 cn2Label=PacketsDtoS bytesIn=600 bytesOut=1300"),
		string(outbound))
}

func TestCEF_BeginFlowHasNoCounterFields(t *testing.T) {
	c := newConverter(t, KindCEF)
	out, err := c.Convert(record(t, 2, "1578673962,10.244.0.40,10.244.1.68,36098,25227,T,I,A,B"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(out), " act=A"), string(out))
}

func TestCEF_Errors(t *testing.T) {
	c := newConverter(t, KindCEF)

	tests := []struct {
		name   string
		mutate func(*flowlog.DenormalizedRecord)
	}{
		{"short mac", func(r *flowlog.DenormalizedRecord) { r.MAC = "000D3A" }},
		{"bad time", func(r *flowlog.DenormalizedRecord) { r.Time = "08/09/2017" }},
		{"bad start time", func(r *flowlog.DenormalizedRecord) { r.StartTime = "soon" }},
		{"bad resource id", func(r *flowlog.DenormalizedRecord) { r.ResourceID = "nsg" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record(t, 2, v2TupleTCP)
			tt.mutate(&rec)
			_, err := c.Convert(rec)
			require.Error(t, err)
			assert.True(t, faults.Is(err, faults.KindParse))
		})
	}
}

func TestSplunk_Envelope(t *testing.T) {
	c := newConverter(t, KindSplunk)
	rec := record(t, 2, v2TupleTCP)

	out, err := c.Convert(rec)
	require.NoError(t, err)

	event, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Equal(t, `{"sourcetype":"amdl:nsg:flowlogs","time":1579071600.5173253,"event":`+string(event)+`}`, string(out))

	framed := c.Frame([][]byte{out, out})
	assert.Equal(t, string(out)+string(out), string(framed))
}

func TestBundle_Frame(t *testing.T) {
	c := newConverter(t, KindJSON)
	a, err := c.Convert(record(t, 2, v2TupleTCP))
	require.NoError(t, err)
	b, err := c.Convert(record(t, 2, v2TupleUDP))
	require.NoError(t, err)

	framed := c.Frame([][]byte{a, b})

	var doc flowlog.Document
	require.NoError(t, json.Unmarshal(framed, &doc))
	require.Len(t, doc.Records, 2)
	assert.Equal(t, `{"records":[`+string(a)+`,`+string(b)+`]}`, string(framed))
}

func TestECSBulk_Frame(t *testing.T) {
	c := newConverter(t, KindECSBulk)
	a, err := c.Convert(record(t, 2, v2TupleTCP))
	require.NoError(t, err)

	framed := string(c.Frame([][]byte{a, a}))
	lines := strings.Split(strings.TrimSuffix(framed, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"index":{}}`, lines[0])
	assert.Equal(t, string(a), lines[1])
	assert.Equal(t, "application/x-ndjson", c.ContentType())
}

func TestOverheadBoundsFramedSize(t *testing.T) {
	for _, kind := range []string{KindCEF, KindSplunk, KindECS, KindJSON, KindECSBulk} {
		t.Run(kind, func(t *testing.T) {
			c := newConverter(t, kind)
			var items [][]byte
			budget := c.FrameOverhead()
			for _, tuple := range []string{v2TupleTCP, v2TupleUDP, v2TupleTCP} {
				item, err := c.Convert(record(t, 2, tuple))
				require.NoError(t, err)
				items = append(items, item)
				budget += len(item) + c.ItemOverhead()
			}
			assert.LessOrEqual(t, len(c.Frame(items)), budget)
		})
	}
}

func TestCheckFits(t *testing.T) {
	c := newConverter(t, KindJSON)
	item := []byte(`{"a":1}`)
	assert.NoError(t, CheckFits(c, item, PayloadSize(c, item)))

	err := CheckFits(c, item, PayloadSize(c, item)-1)
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindOverflow))
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New("syslog", Options{})
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindConfiguration))
}
