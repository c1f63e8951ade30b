package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/poiesic/docingest/core"
)

const wordBodyPart = "word/document.xml"

var errNoDocumentBody = errors.New("missing " + wordBodyPart)

// parseWord reads the body paragraphs of a .docx package as one page.
func parseWord(ctx context.Context, path string) ([]core.Page, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != wordBodyPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		paragraphs, err := readParagraphs(ctx, rc)
		if err != nil {
			return nil, err
		}
		return []core.Page{{
			Content:  strings.Join(paragraphs, "\n"),
			Metadata: core.Metadata{},
		}}, nil
	}
	return nil, errNoDocumentBody
}

// readParagraphs collects the text runs of each w:p element. Tabs and
// breaks inside a paragraph are kept; empty paragraphs are dropped.
func readParagraphs(ctx context.Context, r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				current.Reset()
			case "t":
				inText = true
			case "tab":
				current.WriteByte('\t')
			case "br", "cr":
				current.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}
