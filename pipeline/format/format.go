// Package format renders denormalized flow records for the supported sinks.
// Converters are pure: they never perform I/O.
package format

import (
	"bytes"
	"strconv"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
)

// Converter renders single records and frames a batch of rendered records
// into one payload. ItemOverhead and FrameOverhead bound the framing bytes
// Frame adds per item and per payload, so callers can budget batches against
// a sink's transmission limit.
type Converter interface {
	Name() string
	Convert(rec flowlog.DenormalizedRecord) ([]byte, error)
	Frame(items [][]byte) []byte
	ItemOverhead() int
	FrameOverhead() int
	ContentType() string
}

// Converter names accepted by New
const (
	KindCEF     = "cef"
	KindSplunk  = "splunk"
	KindECS     = "ecs"
	KindJSON    = "json"
	KindECSBulk = "ecs-bulk"
)

// Options tunes converter construction
type Options struct {
	// Now stamps event.ingested on ECS documents
	Now func() time.Time
	// SplunkSourceType overrides the HEC sourcetype
	SplunkSourceType string
}

// New returns the converter registered under kind
func New(kind string, opts Options) (Converter, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch kind {
	case KindCEF:
		return CEF{}, nil
	case KindSplunk:
		st := opts.SplunkSourceType
		if st == "" {
			st = DefaultSplunkSourceType
		}
		return Splunk{SourceType: st}, nil
	case KindECS:
		return ECS{Now: opts.Now}, nil
	case KindJSON:
		return Bundle{}, nil
	case KindECSBulk:
		return ECSBulk{ECS: ECS{Now: opts.Now}}, nil
	default:
		return nil, faults.Configuration("format.new", "unknown output format %q", kind)
	}
}

// PayloadSize returns the framed size of a single rendered item
func PayloadSize(c Converter, item []byte) int {
	return len(item) + c.ItemOverhead() + c.FrameOverhead()
}

var (
	bundleHead = []byte(`{"records":[`)
	bundleTail = []byte(`]}`)
)

// frameBundle wraps items as {"records":[a,b,...]}
func frameBundle(items [][]byte) []byte {
	size := len(bundleHead) + len(bundleTail)
	for _, it := range items {
		size += len(it) + 1
	}
	var b bytes.Buffer
	b.Grow(size)
	b.Write(bundleHead)
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(it)
	}
	b.Write(bundleTail)
	return b.Bytes()
}

func overflowError(c Converter, size, limit int) error {
	return faults.Overflow("format."+c.Name(), "rendered record of %d bytes exceeds transmission limit of %d bytes", size, limit)
}

// CheckFits returns an overflow error when item cannot be sent within limit even alone
func CheckFits(c Converter, item []byte, limit int) error {
	if size := PayloadSize(c, item); size > limit {
		return overflowError(c, size, limit)
	}
	return nil
}

func sumCounters(a, b string) (string, error) {
	x, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return "", faults.Parse("format.counter", "counter %q is not an integer", a)
	}
	y, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return "", faults.Parse("format.counter", "counter %q is not an integer", b)
	}
	return strconv.FormatInt(x+y, 10), nil
}
