package search

import (
	"strings"
	"unicode"
)

// Words that carry no meaning for keyword matching.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"was": {}, "to": {}, "of": {}, "and": {}, "in": {}, "that": {},
	"have": {}, "it": {}, "for": {}, "not": {}, "on": {}, "with": {},
	"as": {}, "you": {}, "do": {}, "at": {}, "this": {}, "but": {},
	"by": {}, "from": {}, "or": {},
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// keywords lowercases text and splits it on anything that is not a letter or
// digit, so cell separators, markup and code punctuation never glue words
// together. Stop words are dropped.
func keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			out = append(out, f)
		}
	}
	return out
}

// matchesVerbatim reports whether every keyword of query occurs as a whole
// word in content. A query made only of stop words never matches.
func matchesVerbatim(content, query string) bool {
	want := keywords(query)
	if len(want) == 0 {
		return false
	}

	have := make(map[string]struct{})
	for _, w := range keywords(content) {
		have[w] = struct{}{}
	}
	for _, w := range want {
		if _, ok := have[w]; !ok {
			return false
		}
	}
	return true
}
