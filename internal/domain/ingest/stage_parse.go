package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// assetPromptFor returns the caption prompt appropriate to the asset kind:
// a markdown table for tabular images, a descriptive paragraph otherwise.
func assetPromptFor(kind string) string {
	if kind == "table" {
		return "describe this image as a markdown table"
	}
	return "describe this image in a short descriptive paragraph"
}

// captionFence wraps a synthesized caption so readers of the stored markdown
// can tell it was generated rather than authored.
func captionFence(assetID, caption string) string {
	return fmt.Sprintf("\n<!-- synthesized:%s -->\n%s\n<!-- /synthesized -->\n", assetID, caption)
}

// runParseStage converts the document's local file to markdown, captions
// every inline image/table asset, and substitutes each placeholder with its
// caption. If the parser's markdown comes back empty but its HTML does not,
// the stage falls back to HTML→markdown conversion; if both are empty the
// stage fails with ErrParseEmpty.
func runParseStage(ctx context.Context, deps Dependencies, doc *Document) error {
	result, err := deps.Parser.Parse(ctx, doc.Path)
	if err != nil {
		return Temporary("document parse failed", err)
	}

	markdown := result.Markdown
	if strings.TrimSpace(markdown) == "" {
		if strings.TrimSpace(result.HTML) == "" {
			return ErrParseEmpty
		}
		converted, convErr := htmltomarkdown.ConvertString(result.HTML)
		if convErr != nil {
			return ErrParseEmpty
		}
		markdown = converted
	}

	captions, err := captionAssets(ctx, deps, doc, result.Assets)
	if err != nil {
		return err
	}
	for assetID, caption := range captions {
		placeholder := "{{asset:" + assetID + "}}"
		markdown = strings.ReplaceAll(markdown, placeholder, caption)
	}

	doc.ParsedContent = markdown
	doc.CurrentStep = 3
	return nil
}

// captionAssets uploads each image/table asset to object storage and
// captions it through the vision adapter, fanned out across a bounded
// semaphore so one document's asset count never floods the adapter.
func captionAssets(ctx context.Context, deps Dependencies, doc *Document, assets []ParsedAsset) (map[string]string, error) {
	if len(assets) == 0 {
		return nil, nil
	}

	driveID := doc.DriveName
	if doc.DriveID != nil {
		driveID = *doc.DriveID
	}

	sem := newSemaphore(deps.concurrency())
	var (
		mu       sync.Mutex
		captions = make(map[string]string, len(assets))
		firstErr error
		wg       sync.WaitGroup
	)

	for _, asset := range assets {
		asset := asset
		if err := sem.acquire(ctx); err != nil {
			return nil, Temporary("asset captioning cancelled", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.release()

			key := fmt.Sprintf("images/%s/%s.png", driveID, asset.ID)
			if _, err := deps.Objects.Put(ctx, key, asset.Bytes, "image/png"); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = Temporary("asset upload failed", err)
				}
				mu.Unlock()
				return
			}

			caption, err := deps.Vision.Caption(ctx, asset.Bytes, assetPromptFor(asset.Kind))
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = Temporary("asset caption failed", err)
				}
				mu.Unlock()
				return
			}

			mu.Lock()
			captions[asset.ID] = captionFence(asset.ID, caption)
			mu.Unlock()
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return captions, nil
}
