// Package chunk splits page text into overlapping, size-bounded chunks.
//
// Splitting is recursive over an ordered separator list: the first separator
// present in the text splits it, oversized pieces are split again with the
// separators that follow, and the empty separator falls back to single
// characters. Pieces are then merged greedily up to the chunk size, with a
// tail of whole pieces repeated at the start of the next chunk.
//
// Separators stay attached to the piece they end, so every chunk is an exact
// substring of its page and carries its byte offset.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docingest/core"
)

// ErrInvalidConfig is returned for unusable size/overlap settings.
var ErrInvalidConfig = errors.New("invalid chunk config")

// Defaults.
const (
	DefaultSize    = 800
	DefaultOverlap = 100
)

// DefaultSeparators is the separator order used by DefaultConfig.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Config controls chunk sizes. Lengths are counted in characters (runes).
type Config struct {
	Size       int      `yaml:"size"`
	Overlap    int      `yaml:"overlap"`
	Separators []string `yaml:"separators"`
}

// DefaultConfig returns 800-character chunks with 100 characters of overlap.
func DefaultConfig() Config {
	return Config{
		Size:       DefaultSize,
		Overlap:    DefaultOverlap,
		Separators: append([]string(nil), DefaultSeparators...),
	}
}

// Validate checks Size > 0 and 0 <= Overlap < Size.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, c.Size, c.Overlap)
	}
	return nil
}

// Segment is a chunk of a single text.
type Segment struct {
	Content string
	// Offset is the byte offset of Content in the source text.
	Offset int
}

// Splitter splits text according to a Config. It is safe for concurrent use.
type Splitter struct {
	cfg Config
}

// NewSplitter validates cfg and returns a Splitter.
// A nil separator list means DefaultSeparators.
func NewSplitter(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Separators == nil {
		cfg.Separators = DefaultSeparators
	}
	cfg.Separators = append([]string(nil), cfg.Separators...)
	return &Splitter{cfg: cfg}, nil
}

// Config returns the splitter's configuration.
func (s *Splitter) Config() Config {
	cfg := s.cfg
	cfg.Separators = append([]string(nil), s.cfg.Separators...)
	return cfg
}

type piece struct {
	offset int // bytes
	length int // bytes
	runes  int
}

// SplitText splits text into chunks of at most Size characters.
// Whitespace-only input, and whitespace-only chunks, produce nothing.
func (s *Splitter) SplitText(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.cfg.Size {
		return []Segment{{Content: text, Offset: 0}}
	}

	pieces := s.split(text, 0, s.cfg.Separators, nil)
	return s.merge(text, pieces)
}

// split appends the pieces of text (found at offset in the source) to out.
func (s *Splitter) split(text string, offset int, separators []string, out []piece) []piece {
	sep, rest, ok := firstPresent(text, separators)
	if !ok {
		return s.hardCut(text, offset, out)
	}

	pos := offset
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		runes := utf8.RuneCountInString(part)
		if runes <= s.cfg.Size {
			out = append(out, piece{offset: pos, length: len(part), runes: runes})
		} else {
			out = s.split(part, pos, rest, out)
		}
		pos += len(part)
	}
	return out
}

// firstPresent finds the first non-empty separator contained in text.
// The empty separator, or running out of separators, reports !ok.
func firstPresent(text string, separators []string) (string, []string, bool) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil, false
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:], true
		}
	}
	return "", nil, false
}

// hardCut emits one piece per rune so merge can fill chunks to Size and
// still carry Overlap characters into the next one.
func (s *Splitter) hardCut(text string, offset int, out []piece) []piece {
	for i, r := range text {
		out = append(out, piece{offset: offset + i, length: utf8.RuneLen(r), runes: 1})
	}
	return out
}

// merge packs pieces into chunks of at most Size runes. After each chunk the
// next one restarts at up to Overlap runes of trailing whole pieces, as long
// as that leaves room for the next unseen piece.
func (s *Splitter) merge(text string, pieces []piece) []Segment {
	var segments []Segment
	n := len(pieces)
	start := 0
	for start < n {
		end, size := start, 0
		for end < n && size+pieces[end].runes <= s.cfg.Size {
			size += pieces[end].runes
			end++
		}

		first, last := pieces[start], pieces[end-1]
		content := text[first.offset : last.offset+last.length]
		if strings.TrimSpace(content) != "" {
			segments = append(segments, Segment{Content: content, Offset: first.offset})
		}
		if end == n {
			break
		}

		next, overlap := end, 0
		for next > start+1 {
			candidate := pieces[next-1].runes
			if overlap+candidate > s.cfg.Overlap || overlap+candidate+pieces[end].runes > s.cfg.Size {
				break
			}
			overlap += candidate
			next--
		}
		start = next
	}
	return segments
}

// SplitPages chunks every page. Each chunk copies its page's metadata and
// adds the page index, a running chunk index and the start offset.
func (s *Splitter) SplitPages(pages []core.Page) []core.Chunk {
	var chunks []core.Chunk
	for pageIndex, page := range pages {
		for _, seg := range s.SplitText(page.Content) {
			meta := page.Metadata.Clone()
			meta.SetInt(core.MetaPageIndex, pageIndex)
			meta.SetInt(core.MetaChunkIndex, len(chunks))
			meta.SetInt(core.MetaStartOffset, seg.Offset)
			chunks = append(chunks, core.Chunk{Content: seg.Content, Metadata: meta})
		}
	}
	return chunks
}
