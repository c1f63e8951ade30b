package extract

import (
	"context"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/core"
)

// parseImage turns each recognized text block into its own page.
func (e *Extractor) parseImage(ctx context.Context, path string) ([]core.Page, error) {
	if e.recognizer == nil {
		return nil, ai.ErrRecognizerUnavailable
	}

	blocks, err := e.recognizer.RecognizeText(ctx, path)
	if err != nil {
		return nil, err
	}

	pages := make([]core.Page, 0, len(blocks))
	for i, block := range blocks {
		meta := core.Metadata{}
		meta.SetInt(core.MetaBlock, i)
		pages = append(pages, core.Page{Content: block, Metadata: meta})
	}
	return pages, nil
}
