package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtensionDocType(t *testing.T) {
	require.Equal(t, DocTypeWordProcessor, extensionDocType("2024년 제5차 회의.docx"))
	require.Equal(t, DocTypeCSV, extensionDocType("budget.csv"))
	require.Equal(t, DocTypeSpreadsheet, extensionDocType("budget.xlsx"))
	require.Equal(t, DocTypeHWP, extensionDocType("공문.hwp"))
	require.Equal(t, DocTypeOther, extensionDocType("noext"))
}

func TestRegexClassifyDetectsSubtype(t *testing.T) {
	category, subtype, ok := regexClassify("제5차 회의 속기록.docx", "/meetings/2024")
	require.True(t, ok)
	require.Equal(t, DocCategoryMeeting, category)
	require.NotNil(t, subtype)
	require.Equal(t, MeetingSubtypeMinutes, *subtype)
}

func TestRegexClassifyDetectsWorkDocument(t *testing.T) {
	category, subtype, ok := regexClassify("2024_사업계획서_초안.docx", "/work/draft")
	require.True(t, ok)
	require.Equal(t, DocCategoryWork, category)
	require.Nil(t, subtype)
}

func TestRegexClassifyAmbiguousFallsThrough(t *testing.T) {
	_, _, ok := regexClassify("IMG_0001.png", "/misc")
	require.False(t, ok)
}

func TestSubtypeConfidenceOrdering(t *testing.T) {
	result := MeetingSubtypeResult
	minutes := MeetingSubtypeMinutes
	agenda := MeetingSubtypeAgenda

	require.Greater(t, SubtypeConfidence(&result), SubtypeConfidence(&minutes))
	require.Greater(t, SubtypeConfidence(&minutes), SubtypeConfidence(&agenda))
	require.Equal(t, 0, SubtypeConfidence(nil))
}

func TestNormalizeEventTitleStripsOrdinalPrefix(t *testing.T) {
	require.Equal(t, "정기 회의", normalizeEventTitle("5차 정기 회의"))
	require.Equal(t, "정기 회의", normalizeEventTitle("1. 정기 회의"))
	require.Equal(t, "정기 회의", normalizeEventTitle("   정기    회의  "))
}

func TestAccessLevelForPolicy(t *testing.T) {
	result := MeetingSubtypeResult
	require.Equal(t, 4, accessLevelFor(DocCategoryMeeting, &result, 1))
	require.Equal(t, 3, accessLevelFor(DocCategoryMeeting, nil, 1))
	require.Equal(t, 2, accessLevelFor(DocCategoryWork, nil, 1))
	require.Equal(t, 1, accessLevelFor(DocCategoryOther, nil, 0))
	require.Equal(t, 2, accessLevelFor(DocCategoryOther, nil, 2))
}
