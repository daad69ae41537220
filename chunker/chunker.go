// Package chunker implements the Chunker (C6): paragraph-boundary-first
// semantic segmentation of a document into overlapping, byte-offset
// tracked chunks.
package chunker

import (
	"strings"
)

// Config tunes chunk sizing. Target is the target chunk size in
// characters (default 2000); Overlap is carried into the next chunk
// (default 200).
type Config struct {
	Target  int
	Overlap int
}

func DefaultConfig() Config {
	return Config{Target: 2000, Overlap: 200}
}

// Chunk is one segment of a document, with byte offsets into the original
// content such that, after trimming overlaps, concatenating chunks in
// order reproduces the original content exactly (I2, §8 round-trip law).
type Chunk struct {
	Index       int
	Content     string
	OffsetStart int
	OffsetEnd   int
}

// Chunker is pure and restartable: the same content and Config always
// produce the same chunks.
type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.Target <= 0 {
		cfg.Target = 2000
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Target {
		cfg.Overlap = 200
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits content at paragraph boundaries, merging adjacent
// paragraphs while cumulative length stays under Target. When the next
// paragraph would push a chunk over Target, the chunk is emitted and the
// next one starts with the last Overlap characters of the previous chunk,
// aligned to the nearest preceding whitespace. Documents smaller than
// Target are returned as a single chunk.
func (c *Chunker) Chunk(content string) []Chunk {
	if content == "" {
		return nil
	}
	if len(content) <= c.cfg.Target {
		return []Chunk{{Index: 0, Content: content, OffsetStart: 0, OffsetEnd: len(content)}}
	}

	paragraphs := splitParagraphs(content)

	var chunks []Chunk
	var curStart int
	var cur strings.Builder
	curLen := 0

	flush := func(end int) {
		if cur.Len() == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Content:     cur.String(),
			OffsetStart: curStart,
			OffsetEnd:   end,
		})
		cur.Reset()
		curLen = 0
	}

	pos := 0
	for _, p := range paragraphs {
		pStart := pos
		pEnd := pos + len(p)
		pos = pEnd

		if curLen == 0 {
			curStart = pStart
		}

		if curLen > 0 && curLen+len(p) > c.cfg.Target {
			prevEnd := curStart + curLen
			flush(prevEnd)

			overlapText, overlapStart := takeOverlap(content, prevEnd, c.cfg.Overlap)
			curStart = overlapStart
			cur.WriteString(overlapText)
			curLen = len(overlapText)
		}

		cur.WriteString(p)
		curLen += len(p)
	}
	flush(curStart + curLen)

	if len(chunks) == 0 {
		return []Chunk{{Index: 0, Content: content, OffsetStart: 0, OffsetEnd: len(content)}}
	}
	return chunks
}

// takeOverlap returns the last n characters ending at end, pulled back to
// the nearest preceding whitespace boundary so overlaps don't split words,
// plus the byte offset that text starts at.
func takeOverlap(content string, end, n int) (string, int) {
	if n <= 0 || end <= 0 {
		return "", end
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	for start > 0 && start < len(content) && !isSpace(content[start-1]) {
		start--
	}
	if start >= end {
		return "", end
	}
	return content[start:end], start
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// splitParagraphs splits content on blank-line boundaries ("\n\n"),
// keeping separators attached to the preceding paragraph so that
// concatenation reproduces content exactly. A paragraph (with its trailing
// separator) longer than 4000 bytes is further split on sentence
// boundaries; the final paragraph, which has no trailing blank line, is
// never split here.
func splitParagraphs(content string) []string {
	var paras []string
	rest := content
	for {
		idx := strings.Index(rest, "\n\n")
		if idx == -1 {
			if rest != "" {
				paras = append(paras, rest)
			}
			break
		}
		end := idx + 2
		for end < len(rest) && rest[end] == '\n' {
			end++
		}
		para := rest[:end]
		if len(para) > 4000 {
			paras = append(paras, splitSentences(para)...)
		} else {
			paras = append(paras, para)
		}
		rest = rest[end:]
	}
	return paras
}

// splitSentences is the fallback for a single oversized paragraph: split
// at sentence-ending punctuation followed by whitespace.
func splitSentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if (p[i] == '.' || p[i] == '!' || p[i] == '?') && i+1 < len(p) && isSpace(p[i+1]) {
			out = append(out, p[start:i+2])
			start = i + 2
		}
	}
	if start < len(p) {
		out = append(out, p[start:])
	}
	if len(out) == 0 {
		return []string{p}
	}
	return out
}

// Reassemble rebuilds the original content by trimming each chunk's
// leading overlap against the previous chunk's tail, verifying the
// round-trip law in §8.
func Reassemble(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0].Content)
	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].OffsetEnd
		gap := chunks[i].OffsetStart
		overlapLen := prevEnd - gap
		if overlapLen < 0 {
			overlapLen = 0
		}
		if overlapLen > len(chunks[i].Content) {
			overlapLen = len(chunks[i].Content)
		}
		b.WriteString(chunks[i].Content[overlapLen:])
	}
	return b.String()
}
