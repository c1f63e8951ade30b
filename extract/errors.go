package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for extensions no category handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtraction matches every *ExtractionError.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmptyPath is returned when no file path is given.
	ErrEmptyPath = errors.New("file path is required")
)

// ExtractionError reports a parser or OCR failure for a supported file.
type ExtractionError struct {
	Path     string
	Category string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction of %s failed: %v", e.Category, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExtraction.
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

func extractionError(path, category string, err error) error {
	return &ExtractionError{Path: path, Category: category, Err: err}
}
