package chunking

import (
	"fmt"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

// NeedsSplit reports whether a chunk is larger than the downstream budget
func NeedsSplit(c Chunk, maxChunkSize int64) bool {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return c.Length > maxChunkSize
}

// Split subdivides the bytes of parent at top-level JSON object boundaries into
// chunks of at most maxChunkSize bytes. The output tiles the parent range
// exactly: separators between records stay with the following chunk and any
// trailing bytes after the last record stay with the final chunk. A record
// larger than maxChunkSize on its own becomes its own chunk.
func Split(parent Chunk, content []byte, maxChunkSize int64) ([]Chunk, error) {
	if len(content) == 0 {
		return nil, faults.ChunkingInvariant("chunking.split", "empty content for chunk %q at offset %d", parent.LastBlockName, parent.Start)
	}
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	var out []Chunk
	emit := func(from, to int) {
		out = append(out, Chunk{
			Start:         parent.Start + int64(from),
			Length:        int64(to - from),
			LastBlockName: fmt.Sprintf("%d-%s", len(out), parent.LastBlockName),
		})
	}

	chunkStart, chunkEnd := 0, 0
	for cursor := 0; ; {
		end, ok := nextRecordEnd(content, cursor)
		if !ok {
			break
		}
		if chunkEnd > chunkStart && int64(end-chunkStart) > maxChunkSize {
			emit(chunkStart, chunkEnd)
			chunkStart = chunkEnd
		}
		chunkEnd = end
		cursor = end
	}

	if len(content) > chunkStart {
		emit(chunkStart, len(content))
	}

	return out, nil
}

// nextRecordEnd returns the offset just past the closing brace of the next
// complete top-level object at or after from. Braces inside string literals
// are ignored. The scan is a single loop so nesting depth costs no stack.
func nextRecordEnd(content []byte, from int) (int, bool) {
	depth := 0
	inString, escaped := false, false

	for i := from; i < len(content); i++ {
		c := content[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					return i + 1, true
				}
			}
		}
	}

	return 0, false
}
