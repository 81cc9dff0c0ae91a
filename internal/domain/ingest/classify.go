package ingest

import (
	"path/filepath"
	"regexp"
	"strings"
)

// subtypeKeyword maps a filename/path token to the meeting subtype it signals.
var subtypeKeywords = []struct {
	pattern regexp.Regexp
	subtype MeetingSubtype
}{
	{pattern: *regexp.MustCompile(`안건|agenda`), subtype: MeetingSubtypeAgenda},
	{pattern: *regexp.MustCompile(`속기|회의록|minutes`), subtype: MeetingSubtypeMinutes},
	{pattern: *regexp.MustCompile(`결과|result`), subtype: MeetingSubtypeResult},
}

// workDocumentTokens flags path segments that indicate an internal working
// document rather than a meeting artifact.
var workDocumentTokens = regexp.MustCompile(`기안|보고서|계획서|draft|memo|report`)

// extensionDocType maps a file extension to the closed DocType enum; unknown
// extensions resolve to DocTypeOther.
func extensionDocType(name string) DocType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".doc", ".docx", ".hwpx":
		return DocTypeWordProcessor
	case ".hwp":
		return DocTypeHWP
	case ".xls", ".xlsx", ".csv":
		if strings.ToLower(filepath.Ext(name)) == ".csv" {
			return DocTypeCSV
		}
		return DocTypeSpreadsheet
	case ".ppt", ".pptx":
		return DocTypeSlides
	case ".pdf":
		return DocTypePDF
	case ".txt", ".md":
		return DocTypeText
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp":
		return DocTypeImage
	default:
		return DocTypeOther
	}
}

// regexClassify is the first classification pass: a cheap pattern match over
// the file name and containing folder path. It returns ok=false when the
// result is ambiguous (no subtype keyword and no work-document token hit),
// signalling the caller to fall back to the LLM adapter.
func regexClassify(name, path string) (category DocCategory, subtype *MeetingSubtype, ok bool) {
	haystack := strings.ToLower(name + " " + path)

	for _, kw := range subtypeKeywords {
		if kw.pattern.MatchString(haystack) {
			s := kw.subtype
			return DocCategoryMeeting, &s, true
		}
	}
	if workDocumentTokens.MatchString(haystack) {
		return DocCategoryWork, nil, true
	}
	return DocCategoryOther, nil, false
}

// normalizeEventTitle strips leading numeric/ordinal prefixes ("5차 ", "1. ")
// and collapses whitespace, so fuzzy matching compares the meaningful part of
// the title only.
func normalizeEventTitle(title string) string {
	title = strings.TrimSpace(title)
	title = leadingOrdinal.ReplaceAllString(title, "")
	title = strings.Join(strings.Fields(title), " ")
	return title
}

var leadingOrdinal = regexp.MustCompile(`^\s*(\d+\s*[.\-차회)]+\s*)+`)

// accessLevelFor implements the enrichment access-level policy: result
// documents are broadly public (4), other meeting documents are 3, work
// documents are 2, everything else inherits the document's stored default.
func accessLevelFor(category DocCategory, subtype *MeetingSubtype, documentDefault int) int {
	if subtype != nil && *subtype == MeetingSubtypeResult {
		return 4
	}
	if category == DocCategoryMeeting {
		return 3
	}
	if category == DocCategoryWork {
		return 2
	}
	if documentDefault > 0 {
		return documentDefault
	}
	return 1
}
