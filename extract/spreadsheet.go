package extract

import (
	"context"
	"strings"

	"github.com/poiesic/docingest/core"
	"github.com/xuri/excelize/v2"
)

// parseSpreadsheet renders each non-empty sheet as one page. The first
// non-empty row is the header; every following row becomes "header: value"
// lines, with rows separated by a blank line.
func parseSpreadsheet(ctx context.Context, path string) ([]core.Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []core.Page
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		content := renderSheet(rows)
		if content == "" {
			continue
		}
		pages = append(pages, core.Page{
			Content:  content,
			Metadata: core.Metadata{core.MetaSheet: sheet},
		})
	}
	return pages, nil
}

func renderSheet(rows [][]string) string {
	var header []string
	var records []string
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		if header == nil {
			header = row
			continue
		}
		if record := renderRow(header, row); record != "" {
			records = append(records, record)
		}
	}
	if header == nil {
		return ""
	}
	if len(records) == 0 {
		return strings.Join(trimCells(header), "\t")
	}
	return strings.Join(records, "\n\n")
}

func renderRow(header, row []string) string {
	lines := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		lines = append(lines, columnLabel(header, i)+": "+cell)
	}
	return strings.Join(lines, "\n")
}

func columnLabel(header []string, i int) string {
	if i < len(header) {
		if label := strings.TrimSpace(header[i]); label != "" {
			return label
		}
	}
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return "?"
	}
	return name
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, cell := range row {
		if cell = strings.TrimSpace(cell); cell != "" {
			out = append(out, cell)
		}
	}
	return out
}
