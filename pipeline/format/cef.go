package format

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
)

const cefTimeLayout = "Jan 02 15:04:05"

var crlf = []byte("\r\n")

// CEF renders records as Common Event Format lines, framed CRLF-terminated
type CEF struct{}

func (CEF) Name() string        { return KindCEF }
func (CEF) ItemOverhead() int   { return len(crlf) }
func (CEF) FrameOverhead() int  { return 0 }
func (CEF) ContentType() string { return "text/plain" }

// Convert renders one CEF line without its terminator
func (CEF) Convert(rec flowlog.DenormalizedRecord) ([]byte, error) {
	ts, err := rec.Timestamp()
	if err != nil {
		return nil, err
	}
	extID, err := rec.DeviceExternalID()
	if err != nil {
		return nil, err
	}
	mac, err := rec.DelimitedMAC()
	if err != nil {
		return nil, err
	}
	start, err := strconv.ParseUint(rec.StartTime, 10, 64)
	if err != nil {
		return nil, faults.Parse("format.cef", "start time %q is not a unix timestamp", rec.StartTime)
	}

	var b strings.Builder
	b.Grow(512)

	b.WriteString(ts.Format(cefTimeLayout))
	b.WriteString(" host CEF:0|Microsoft.Network|NETWORKSECURITYGROUPS|")
	b.WriteString(rec.Version.String())
	b.WriteByte('|')
	b.WriteString(rec.Category)
	b.WriteByte('|')
	b.WriteString(rec.OperationName)
	b.WriteString("|1|deviceExternalId=")
	b.WriteString(extID)

	b.WriteString(" cs1=")
	b.WriteString(rec.NSGRuleName)
	b.WriteString(" cs1Label=NSGRuleName")

	if rec.Inbound() {
		b.WriteString(" dmac=")
	} else {
		b.WriteString(" smac=")
	}
	b.WriteString(mac)

	b.WriteString(" rt=")
	b.WriteString(strconv.FormatUint(start*1000, 10))
	b.WriteString(" src=")
	b.WriteString(rec.SourceAddress)
	b.WriteString(" dst=")
	b.WriteString(rec.DestinationAddress)
	b.WriteString(" spt=")
	b.WriteString(rec.SourcePort)
	b.WriteString(" dpt=")
	b.WriteString(rec.DestinationPort)
	b.WriteString(" proto=")
	if rec.TransportProtocol == "U" {
		b.WriteString("UDP")
	} else {
		b.WriteString("TCP")
	}
	b.WriteString(" deviceDirection=")
	if rec.Inbound() {
		b.WriteString("0")
	} else {
		b.WriteString("1")
	}
	b.WriteString(" act=")
	b.WriteString(rec.DeviceAction)

	if rec.HasCounters() {
		bytesIn, bytesOut := rec.BytesDtoS, rec.BytesStoD
		if rec.Inbound() {
			bytesIn, bytesOut = rec.BytesStoD, rec.BytesDtoS
		}

		b.WriteString(" cs2=")
		b.WriteString(rec.FlowState)
		b.WriteString(" cs2Label=FlowState")
		b.WriteString(" cn1=")
		b.WriteString(rec.PacketsStoD)
		b.WriteString(" cn1Label=PacketsStoD")
		b.WriteString(" cn2=")
		b.WriteString(rec.PacketsDtoS)
		b.WriteString(" cn2Label=PacketsDtoS")
		b.WriteString(" bytesIn=")
		b.WriteString(bytesIn)
		b.WriteString(" bytesOut=")
		b.WriteString(bytesOut)
	}

	return []byte(b.String()), nil
}

// Frame joins lines, each terminated by CRLF
func (CEF) Frame(items [][]byte) []byte {
	size := 0
	for _, it := range items {
		size += len(it) + len(crlf)
	}
	var out bytes.Buffer
	out.Grow(size)
	for _, it := range items {
		out.Write(it)
		out.Write(crlf)
	}
	return out.Bytes()
}
