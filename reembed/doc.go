// Package reembed rebuilds the vectors of a stored collection with a new or
// updated embedding model.
//
// Documents keep their identifiers, text and metadata; only vectors change.
// The collection is replaced in a single write once every batch has been
// embedded, so a failed run leaves the old index searchable.
package reembed
