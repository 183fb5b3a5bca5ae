package ingestion

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200

	// Trimmed chunks at or below this length are dropped as noise
	// (page numbers, headers, stray fragments).
	minChunkLength = 50
)

// Chunk splits text into overlapping fixed-size windows. Window size, step
// and the minimum length are measured in runes so multi-byte text is never
// split mid-character. The window start advances by size-overlap each step;
// overlapping is intentional so that concepts straddling a boundary survive
// in at least one chunk. Each window is whitespace-trimmed and short results
// are discarded. Empty input yields no chunks.
func Chunk(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}

	runes := []rune(text)

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if utf8.RuneCountInString(chunk) > minChunkLength {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}
