package extract

import (
	"maps"
	"path/filepath"
	"strings"
)

// Category keys.
const (
	CategoryText  = "text"
	CategoryExcel = "excel"
	CategoryWord  = "word"
	CategoryPDF   = "pdf"
	CategoryImage = "img"
)

// Category is a family of file formats handled by one parser.
type Category struct {
	Name       string
	Extensions map[string]struct{}
}

func newCategory(name string, exts ...string) Category {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[ext] = struct{}{}
	}
	return Category{Name: name, Extensions: set}
}

var categories = map[string]Category{
	CategoryText:  newCategory("Text", ".txt", ".md", ".html", ".xml", ".json", ".py", ".java", ".c", ".cpp", ".csv"),
	CategoryExcel: newCategory("Spreadsheet", ".xlsx"),
	CategoryWord:  newCategory("Word document", ".docx"),
	CategoryPDF:   newCategory("PDF", ".pdf"),
	CategoryImage: newCategory("Image", ".png", ".jpg", ".jpeg", ".bmp"),
}

// extension -> category key
var byExtension = func() map[string]string {
	index := make(map[string]string)
	for key, cat := range categories {
		for ext := range cat.Extensions {
			index[ext] = key
		}
	}
	return index
}()

// SupportedExtensions returns the dispatch table keyed by category.
// The result is a copy and may be modified freely.
func SupportedExtensions() map[string]Category {
	out := make(map[string]Category, len(categories))
	for key, cat := range categories {
		out[key] = Category{Name: cat.Name, Extensions: maps.Clone(cat.Extensions)}
	}
	return out
}

// SupportedExtensionSet returns the union of every category's extensions.
func SupportedExtensionSet() map[string]struct{} {
	out := make(map[string]struct{}, len(byExtension))
	for ext := range byExtension {
		out[ext] = struct{}{}
	}
	return out
}

// Extension returns the lowercased extension of path, including the dot.
func Extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// CategoryOf returns the category key handling path's extension.
func CategoryOf(path string) (string, bool) {
	key, ok := byExtension[Extension(path)]
	return key, ok
}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	_, ok := CategoryOf(path)
	return ok
}
