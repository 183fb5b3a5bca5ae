package ingestion_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tanmaypaliwal576/OpsMind/ingestion"
)

func TestChunkEmptyText(t *testing.T) {
	if chunks := ingestion.Chunk("", 1200, 200); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}

func TestChunkShortTextIsDiscarded(t *testing.T) {
	text := strings.Repeat("a", 50)
	if chunks := ingestion.Chunk(text, 1200, 200); len(chunks) != 0 {
		t.Fatalf("expected no chunks for %d-char text, got %d", len(text), len(chunks))
	}
}

func TestChunkWindowAdvance(t *testing.T) {
	// 3000 chars, window 1200, overlap 200: starts at 0, 1000, 2000.
	text := strings.Repeat("x", 3000)
	chunks := ingestion.Chunk(text, 1200, 200)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1200 || len(chunks[1]) != 1200 {
		t.Fatalf("expected full windows of 1200, got %d and %d", len(chunks[0]), len(chunks[1]))
	}
	if len(chunks[2]) != 1000 {
		t.Fatalf("expected trailing chunk of 1000, got %d", len(chunks[2]))
	}
}

func TestChunkBoundsAndOverlap(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < 5000 {
		sb.WriteString("word ")
	}
	text := sb.String()

	chunks := ingestion.Chunk(text, 1200, 200)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, chunk := range chunks {
		if len(chunk) > 1200 {
			t.Fatalf("chunk %d exceeds window: %d chars", i, len(chunk))
		}
		if len(chunk) <= 50 {
			t.Fatalf("chunk %d survived the noise filter at %d chars", i, len(chunk))
		}
	}

	// Consecutive windows share their 200-char overlap region.
	head := chunks[1][:100]
	if !strings.Contains(chunks[0], head) {
		t.Fatal("expected consecutive chunks to overlap")
	}
}

func TestChunkMeasuresRunesNotBytes(t *testing.T) {
	// 1000 CJK characters fit a single 1200-rune window even though the
	// text is 3000 bytes long.
	text := strings.Repeat("あ", 1000)
	chunks := ingestion.Chunk(text, 1200, 200)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for 1000 runes, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Fatal("expected the chunk to carry the full text")
	}
}

func TestChunkNeverSplitsRunes(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 400)
	chunks := ingestion.Chunk(text, 1200, 200)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %d contains invalid UTF-8", i)
		}
		if utf8.RuneCountInString(chunk) > 1200 {
			t.Fatalf("chunk %d exceeds the window: %d runes", i, utf8.RuneCountInString(chunk))
		}
	}
}

func TestChunkTrimsWhitespace(t *testing.T) {
	text := "   " + strings.Repeat("b", 100) + "   "
	chunks := ingestion.Chunk(text, 1200, 200)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != strings.Repeat("b", 100) {
		t.Fatalf("expected trimmed chunk, got %q", chunks[0])
	}
}

func TestChunkDeterministic(t *testing.T) {
	text := strings.Repeat("deterministic input ", 300)
	first := ingestion.Chunk(text, 1200, 200)
	second := ingestion.Chunk(text, 1200, 200)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}
