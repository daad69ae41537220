package chunker

import (
	"strings"
	"testing"
)

func repeatParagraphs(n int, paraLen int) string {
	para := strings.Repeat("w", paraLen-1) + "."
	paras := make([]string, n)
	for i := range paras {
		paras[i] = para
	}
	return strings.Join(paras, "\n\n")
}

func TestChunkEmptyDocument(t *testing.T) {
	c := New(DefaultConfig())
	chunks := c.Chunk("")
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty document, got %d", len(chunks))
	}
}

func TestChunkSmallDocumentSingleChunk(t *testing.T) {
	c := New(DefaultConfig())
	content := "a short document well under the target size."
	chunks := c.Chunk(content)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != content {
		t.Fatalf("expected chunk content to equal input, got %q", chunks[0].Content)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	content := repeatParagraphs(100, 100) // ~10000 chars
	c := New(DefaultConfig())
	chunks := c.Chunk(content)

	if len(chunks) < 5 || len(chunks) > 6 {
		t.Fatalf("expected 5 or 6 chunks for a 10000-char document, got %d", len(chunks))
	}

	got := Reassemble(chunks)
	if got != content {
		t.Fatalf("reassembled content does not match original:\nwant len=%d\ngot len=%d", len(content), len(got))
	}
}

func TestChunkOffsetsWithinBounds(t *testing.T) {
	content := repeatParagraphs(100, 100)
	c := New(DefaultConfig())
	chunks := c.Chunk(content)

	for _, ch := range chunks {
		if ch.OffsetStart < 0 || ch.OffsetEnd > len(content) {
			t.Fatalf("chunk %d offsets out of bounds: [%d,%d)", ch.Index, ch.OffsetStart, ch.OffsetEnd)
		}
		if ch.OffsetStart >= ch.OffsetEnd {
			t.Fatalf("chunk %d has non-positive span: [%d,%d)", ch.Index, ch.OffsetStart, ch.OffsetEnd)
		}
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i].OffsetStart >= chunks[i-1].OffsetEnd {
			t.Fatalf("chunk %d does not overlap chunk %d: prevEnd=%d start=%d", i, i-1, chunks[i-1].OffsetEnd, chunks[i].OffsetStart)
		}
	}
}

func TestChunkIsPureAndRestartable(t *testing.T) {
	content := repeatParagraphs(50, 150)
	c1 := New(DefaultConfig())
	c2 := New(DefaultConfig())

	a := c1.Chunk(content)
	b := c2.Chunk(content)

	if len(a) != len(b) {
		t.Fatalf("expected identical chunk counts across runs, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Content != b[i].Content {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}
