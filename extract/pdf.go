package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/docingest/core"
)

// parsePDF emits one page unit per physical page, blank pages included,
// so page numbers in metadata match the document.
func parsePDF(ctx context.Context, path string) (pages []core.Page, err error) {
	// The pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return collectPDFPages(ctx, reader.NumPage(), func(i int) (string, error) {
		page := reader.Page(i)
		if page.V.IsNull() {
			return "", nil
		}
		return page.GetPlainText(nil)
	})
}

// collectPDFPages builds pages 1..count from text. A page with no content
// still yields an empty unit so numbering and totals follow the document.
func collectPDFPages(ctx context.Context, count int, text func(i int) (string, error)) ([]core.Page, error) {
	pages := make([]core.Page, 0, count)
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		meta := core.Metadata{}
		meta.SetInt(core.MetaPage, i)
		pages = append(pages, core.Page{Content: content, Metadata: meta})
	}
	return pages, nil
}
