package format

import (
	"encoding/json"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/flowlog"
)

// Bundle renders records as plain JSON framed as {"records":[...]}
type Bundle struct{}

func (Bundle) Name() string        { return KindJSON }
func (Bundle) ItemOverhead() int   { return 1 }
func (Bundle) FrameOverhead() int  { return len(bundleHead) + len(bundleTail) }
func (Bundle) ContentType() string { return "application/json" }

func (Bundle) Convert(rec flowlog.DenormalizedRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func (Bundle) Frame(items [][]byte) []byte {
	return frameBundle(items)
}
