package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextParser handles plain text (.txt) files.
type TextParser struct{}

func (p *TextParser) SupportedFormats() []string { return []string{"txt"} }

func (p *TextParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	return &ParseResult{
		Title:   filepath.Base(path),
		Content: string(data),
		Format:  "txt",
	}, nil
}

// MarkdownParser handles .md files. Heading lines are kept as plain text;
// the chunker's paragraph-boundary algorithm treats them like any other
// line, which is sufficient since markdown structure is not modeled.
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md", "markdown"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}

	title := filepath.Base(path)
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			break
		}
	}

	return &ParseResult{
		Title:   title,
		Content: string(data),
		Format:  "md",
	}, nil
}
