// Package parser is the narrow external-collaborator boundary through which
// raw files become Document content. Semem's core treats document ingestion
// as accepting already-extracted text; markdown/PDF/office-format conversion
// is explicitly out of scope, so this package only covers the two formats
// simple enough not to need a dedicated converter: plain text and markdown.
package parser

import "context"

// ParseResult is what a parser produces from a document file.
type ParseResult struct {
	Title   string
	Content string
	Format  string // "txt", "md"
}

// Parser can parse a specific document format into a single flat Content
// string ready for the chunker.
type Parser interface {
	Parse(ctx context.Context, path string) (*ParseResult, error)
	SupportedFormats() []string
}
