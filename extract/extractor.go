// Package extract turns supported files into page units of text.
//
// Dispatch is by file extension (case-insensitive) into five categories:
// plain text, spreadsheets, Word documents, PDFs and images. Images are read
// through an ai.TextRecognizer.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/docingest/ai"
	"github.com/poiesic/docingest/core"
)

type parseFunc func(ctx context.Context, path string) ([]core.Page, error)

// Extractor parses files into pages. It holds only read-only handles and is
// safe for concurrent use.
type Extractor struct {
	recognizer ai.TextRecognizer
	logger     *slog.Logger
	parsers    map[string]parseFunc
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithRecognizer sets the OCR service used for images.
// Without one, image files fail extraction.
func WithRecognizer(recognizer ai.TextRecognizer) Option {
	return func(e *Extractor) error {
		e.recognizer = recognizer
		return nil
	}
}

// NewExtractor creates an extractor.
func NewExtractor(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extractor")
	e.parsers = map[string]parseFunc{
		CategoryText:  parseText,
		CategoryExcel: parseSpreadsheet,
		CategoryWord:  parseWord,
		CategoryPDF:   parsePDF,
		CategoryImage: e.parseImage,
	}
	return e, nil
}

// Extract parses the file at path into pages. Every page carries the source
// path, its 1-based page number and the total page count in its metadata.
//
// Unknown extensions fail with ErrUnsupportedFormat; parser failures are
// returned as *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, path string) ([]core.Page, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}

	key, ok := CategoryOf(path)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, Extension(path))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := e.parsers[key](ctx, path)
	if err != nil {
		return nil, extractionError(path, key, err)
	}

	total := len(pages)
	for i := range pages {
		if pages[i].Metadata == nil {
			pages[i].Metadata = core.Metadata{}
		}
		pages[i].Metadata[core.MetaSource] = path
		if _, ok := pages[i].Metadata[core.MetaPage]; !ok {
			pages[i].Metadata.SetInt(core.MetaPage, i+1)
		}
		pages[i].Metadata.SetInt(core.MetaTotalPages, total)
	}

	e.logger.Debug("extracted file",
		"file", filepath.Base(path),
		"category", key,
		"pages", total)
	return pages, nil
}
