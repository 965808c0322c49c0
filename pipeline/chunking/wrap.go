package chunking

import (
	"bytes"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

var (
	documentHead = []byte(`{"records":[`)
	documentTail = []byte(`]}`)
)

// WrapRecords turns the raw bytes of a chunk (a comma-separated run of record
// objects cut out of the blob's records array) into a standalone
// {"records":[...]} document.
func WrapRecords(content []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(content)
	first := bytes.IndexByte(trimmed, '{')
	if first < 0 {
		return nil, faults.Parse("chunking.wrap", "chunk of %d bytes contains no record", len(content))
	}
	body := bytes.TrimRight(trimmed[first:], ", \r\n\t")

	doc := make([]byte, 0, len(documentHead)+len(body)+len(documentTail))
	doc = append(doc, documentHead...)
	doc = append(doc, body...)
	doc = append(doc, documentTail...)
	return doc, nil
}
