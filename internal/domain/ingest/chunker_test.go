package ingest

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const sampleMarkdown = `# 보고 안건
일부 도입 텍스트입니다.

## 논의안건 1. 예산안 검토
` + strings.Repeat("회의에서 다양한 의견이 오갔습니다. ", 40) + `

## 논의안건 2. 일정 조정
짧은 본문입니다.
`

func TestSplitSectionsAssignsLevels(t *testing.T) {
	sections := splitSections(sampleMarkdown)
	require.Len(t, sections, 3)
	require.Equal(t, 1, sections[0].Level)
	require.Equal(t, "보고 안건", sections[0].Header)
	require.Equal(t, 2, sections[1].Level)
	require.Contains(t, sections[1].Header, "논의안건 1")
}

func TestParentSectionsPrefersH2(t *testing.T) {
	parents := parentSections(splitSections(sampleMarkdown))
	require.Len(t, parents, 2)
	require.Contains(t, parents[0].Header, "논의안건 1")
	require.Contains(t, parents[1].Header, "논의안건 2")
}

func TestParentSectionsFallsBackToH1(t *testing.T) {
	md := "# 섹션 A\n본문 A\n# 섹션 B\n본문 B\n"
	parents := parentSections(splitSections(md))
	require.Len(t, parents, 2)
	require.Equal(t, "섹션 A", parents[0].Header)
}

func TestIsTableSection(t *testing.T) {
	table := "| a | b |\n| - | - |\n| 1 | 2 |\n"
	require.True(t, isTableSection(table, 0.4))
	require.False(t, isTableSection("plain text\nmore text\n", 0.4))
}

func TestChunkDocumentProducesParentChildInvariant(t *testing.T) {
	docID := uuid.New()
	parents, children, err := chunkDocument(docID, sampleMarkdown, 3, defaultChunkerConfig())
	require.NoError(t, err)
	require.Len(t, parents, 2)
	require.NotEmpty(t, children)

	parentByID := make(map[uuid.UUID]DocumentChunk)
	for _, p := range parents {
		parentByID[p.ID] = p
	}
	for _, c := range children {
		require.False(t, c.IsParent)
		require.NotNil(t, c.ParentChunkID)
		parent, ok := parentByID[*c.ParentChunkID]
		require.True(t, ok)
		require.Equal(t, parent.Content, c.ParentContent)
		require.Equal(t, 3, c.AccessLevel)
	}

	// the long section should have been windowed into more than one child
	longSectionChildren := 0
	for _, c := range children {
		if strings.Contains(c.SectionHeader, "논의안건 1") {
			longSectionChildren++
		}
	}
	require.Greater(t, longSectionChildren, 1)
}

func TestWindowSectionRespectsShortText(t *testing.T) {
	windows := windowSection("short text", 500, 50)
	require.Len(t, windows, 1)
	require.Equal(t, "short text", windows[0].text)
}
