package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunParseStageFallsBackToHTML(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{result: ParseResult{HTML: "<h1>제목</h1><p>본문</p>"}}

	doc := &Document{CurrentStep: 2}
	err := runParseStage(context.Background(), deps, doc)
	require.NoError(t, err)
	require.Contains(t, doc.ParsedContent, "제목")
	require.Equal(t, 3, doc.CurrentStep)
}

func TestRunParseStageFailsWhenBothEmpty(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{result: ParseResult{}}

	doc := &Document{}
	err := runParseStage(context.Background(), deps, doc)
	require.ErrorIs(t, err, ErrParseEmpty)
}

func TestRunParseStagePropagatesAdapterError(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{err: errors.New("network blip")}

	doc := &Document{}
	err := runParseStage(context.Background(), deps, doc)
	require.Error(t, err)
	require.True(t, IsTemporary(err))
}

func TestRunParseStageSubstitutesAssetCaptions(t *testing.T) {
	deps := testDeps()
	deps.Parser = fakeParser{result: ParseResult{
		Markdown: "intro\n{{asset:img-1}}\nmore text",
		Assets:   []ParsedAsset{{ID: "img-1", Kind: "image", Bytes: []byte{1, 2, 3}}},
	}}

	doc := &Document{DriveID: strPtr("drive-1")}
	err := runParseStage(context.Background(), deps, doc)
	require.NoError(t, err)
	require.Contains(t, doc.ParsedContent, "synthesized:img-1")
	require.Contains(t, doc.ParsedContent, "a caption")
}

func strPtr(s string) *string { return &s }
