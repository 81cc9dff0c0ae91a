package ingest

import (
	"context"
	"regexp"
	"strings"
)

var blankLineRun = regexp.MustCompile(`\n{3,}`)

// normalizeWhitespace converts CRLF to LF, collapses runs of 3+ blank lines
// to 2, and strips trailing spaces from every line.
func normalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	return blankLineRun.ReplaceAllString(text, "\n\n")
}

// hasStructuralHeaders reports whether the text already contains at least
// one H1 or H2 line.
func hasStructuralHeaders(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if headerPattern.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// retagHeader promotes a header's text to the category/subtype wording the
// pipeline expects when it recognizes one of the Korean agenda-category
// keywords, leaving unrecognized headers untouched.
func retagHeader(line string) string {
	m := headerPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return line
	}
	hashes, text := m[1], m[2]
	lower := text
	switch {
	case strings.Contains(lower, "보고"):
		return hashes + " 보고 안건: " + text
	case strings.Contains(lower, "논의"):
		return hashes + " 논의 안건: " + text
	case strings.Contains(lower, "의결"):
		return hashes + " 의결 안건: " + text
	default:
		return line
	}
}

// runPreprocessStage normalizes parsed_content into preprocessed_content
// with a disciplined H1/H2 header hierarchy. When no structural headers are
// present, it asks the vision adapter to restructure the text; a failed or
// headerless restructure falls back to a single untitled section rather
// than failing the document.
func runPreprocessStage(ctx context.Context, deps Dependencies, doc *Document) error {
	normalized := normalizeWhitespace(doc.ParsedContent)

	if hasStructuralHeaders(normalized) {
		lines := strings.Split(normalized, "\n")
		for i, l := range lines {
			lines[i] = retagHeader(l)
		}
		doc.PreprocessedContent = strings.Join(lines, "\n")
		doc.CurrentStep = 4
		return nil
	}

	restructured, err := deps.Vision.RestructureSections(ctx, normalized)
	if err == nil && hasStructuralHeaders(restructured) {
		doc.PreprocessedContent = restructured
	} else {
		doc.PreprocessedContent = normalized
	}
	doc.CurrentStep = 4
	return nil
}
