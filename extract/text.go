package extract

import (
	"context"
	"os"
	"strings"

	"github.com/poiesic/docingest/core"
	"github.com/tmc/langchaingo/documentloaders"
)

// parseText loads the whole file as a single page.
func parseText(ctx context.Context, path string) ([]core.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := documentloaders.NewText(f).Load(ctx)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, doc := range docs {
		sb.WriteString(doc.PageContent)
	}
	return []core.Page{{Content: sb.String(), Metadata: core.Metadata{}}}, nil
}
