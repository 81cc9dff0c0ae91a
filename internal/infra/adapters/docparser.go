package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yanqian/meridian/internal/domain/ingest"
)

// DocParser converts a local file into markdown (Stage 3). It defensively
// handles whichever shape the file turns out to be rather than trusting its
// extension: HTML is converted directly, markdown/plain text passes through
// unchanged, and anything else is reported back as an empty ParseResult so
// the pipeline's ErrParseEmpty path takes over.
type DocParser struct{}

// NewDocParser constructs the default local-file parser.
func NewDocParser() *DocParser {
	return &DocParser{}
}

// Parse reads localPath and normalizes it into markdown.
func (p *DocParser) Parse(ctx context.Context, localPath string) (ingest.ParseResult, error) {
	raw, err := os.ReadFile(localPath)
	if err != nil {
		return ingest.ParseResult{}, fmt.Errorf("read local file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(localPath)); ext {
	case ".html", ".htm":
		return ingest.ParseResult{HTML: string(raw)}, nil
	case ".md", ".markdown":
		return ingest.ParseResult{Markdown: string(raw)}, nil
	case ".txt":
		return ingest.ParseResult{Markdown: string(raw)}, nil
	default:
		if looksLikeHTML(raw) {
			return ingest.ParseResult{HTML: string(raw)}, nil
		}
		if looksLikeText(raw) {
			return ingest.ParseResult{Markdown: string(raw)}, nil
		}
		// Binary office/pdf formats have no corpus-grounded extraction path;
		// returning an empty result routes the caller to ErrParseEmpty.
		return ingest.ParseResult{}, nil
	}
}

func looksLikeHTML(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

func looksLikeText(raw []byte) bool {
	for _, b := range raw {
		if b == 0 {
			return false
		}
	}
	return true
}

var _ ingest.DocParser = (*DocParser)(nil)
