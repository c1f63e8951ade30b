package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/docingest/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultSplitter(t *testing.T) *Splitter {
	s, err := NewSplitter(DefaultConfig())
	require.NoError(t, err)
	return s
}

// stitch rebuilds the source from segments using their offsets, skipping
// the bytes already covered by the previous chunk.
func stitch(segments []Segment) string {
	var sb strings.Builder
	covered := 0
	for _, seg := range segments {
		end := seg.Offset + len(seg.Content)
		if end <= covered {
			continue
		}
		skip := max(covered-seg.Offset, 0)
		sb.WriteString(seg.Content[skip:])
		covered = end
	}
	return sb.String()
}

func syntheticText(minLen int) string {
	var sb strings.Builder
	for i := 0; sb.Len() < minLen; i++ {
		fmt.Fprintf(&sb, "Sentence %03d talks about chunking text for retrieval.", i)
		if i%6 == 5 {
			sb.WriteString("\n\n")
		} else {
			sb.WriteString(" ")
		}
	}
	return sb.String()[:minLen]
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"zero overlap", Config{Size: 10, Overlap: 0}, true},
		{"zero size", Config{Size: 0, Overlap: 0}, false},
		{"negative overlap", Config{Size: 10, Overlap: -1}, false},
		{"overlap equals size", Config{Size: 10, Overlap: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}

	_, err := NewSplitter(Config{Size: 5, Overlap: 9})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSplitText_ShortTextIsOneChunk(t *testing.T) {
	s := newDefaultSplitter(t)

	segments := s.SplitText("Hello world. This is a test.")
	require.Len(t, segments, 1)
	assert.Equal(t, "Hello world. This is a test.", segments[0].Content)
	assert.Zero(t, segments[0].Offset)

	exact := strings.Repeat("a", DefaultSize)
	segments = s.SplitText(exact)
	require.Len(t, segments, 1)
	assert.Equal(t, exact, segments[0].Content)
}

func TestSplitText_BlankInput(t *testing.T) {
	s := newDefaultSplitter(t)

	assert.Empty(t, s.SplitText(""))
	assert.Empty(t, s.SplitText(" \n\n\t  "))
}

func TestSplitText_OverlapAndReconstruction(t *testing.T) {
	s := newDefaultSplitter(t)
	text := syntheticText(2000)
	require.Equal(t, 2000, utf8.RuneCountInString(text))

	segments := s.SplitText(text)
	require.GreaterOrEqual(t, len(segments), 3)

	for i, seg := range segments {
		assert.LessOrEqual(t, utf8.RuneCountInString(seg.Content), DefaultSize, "chunk %d too large", i)
		assert.Equal(t, text[seg.Offset:seg.Offset+len(seg.Content)], seg.Content, "chunk %d not a substring", i)

		if i == 0 {
			assert.Zero(t, seg.Offset)
			continue
		}
		prev := segments[i-1]
		prevEnd := prev.Offset + len(prev.Content)
		assert.Greater(t, seg.Offset, prev.Offset)
		assert.LessOrEqual(t, seg.Offset, prevEnd, "gap before chunk %d", i)
		assert.GreaterOrEqual(t, seg.Offset, prevEnd-DefaultOverlap, "chunk %d overlaps too much", i)
	}

	assert.Equal(t, text, stitch(segments))
}

func TestSplitText_OverlapIsUsed(t *testing.T) {
	s, err := NewSplitter(Config{Size: 20, Overlap: 8})
	require.NoError(t, err)

	text := "one two three four five six seven eight nine ten"
	segments := s.SplitText(text)
	require.Greater(t, len(segments), 1)

	overlapped := false
	for i := 1; i < len(segments); i++ {
		prev := segments[i-1]
		if segments[i].Offset < prev.Offset+len(prev.Content) {
			overlapped = true
		}
	}
	assert.True(t, overlapped)
	assert.Equal(t, text, stitch(segments))
}

func TestSplitText_HardCut(t *testing.T) {
	s := newDefaultSplitter(t)
	text := strings.Repeat("x", 2000)

	segments := s.SplitText(text)
	require.Len(t, segments, 3)
	assert.Equal(t, []int{0, 700, 1400}, []int{segments[0].Offset, segments[1].Offset, segments[2].Offset})
	assert.Len(t, segments[0].Content, DefaultSize)
	assert.Len(t, segments[1].Content, DefaultSize)
	assert.Len(t, segments[2].Content, 600)
	assert.Equal(t, text, stitch(segments))
}

func TestSplitText_HardCutKeepsOverlap(t *testing.T) {
	s := newDefaultSplitter(t)
	text := strings.Repeat("0123456789", 250)

	segments := s.SplitText(text)
	require.Greater(t, len(segments), 1)
	for i := 1; i < len(segments); i++ {
		prev := segments[i-1]
		prevEnd := prev.Offset + len(prev.Content)
		assert.Less(t, segments[i].Offset, prevEnd, "chunk %d does not overlap chunk %d", i, i-1)
		assert.GreaterOrEqual(t, segments[i].Offset, prevEnd-DefaultOverlap, "chunk %d overlaps too much", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(segments[i].Content), DefaultSize)
	}
	assert.Equal(t, text, stitch(segments))
}

func TestSplitText_HardCutAfterSeparators(t *testing.T) {
	s, err := NewSplitter(Config{Size: 10, Overlap: 3})
	require.NoError(t, err)
	text := "short words " + strings.Repeat("z", 25)

	segments := s.SplitText(text)
	for _, seg := range segments {
		assert.LessOrEqual(t, utf8.RuneCountInString(seg.Content), 10)
	}
	assert.Equal(t, text, stitch(segments))
	last := segments[len(segments)-1]
	assert.Equal(t, len(text), last.Offset+len(last.Content))
}

func TestSplitText_MultibyteCountsRunes(t *testing.T) {
	s, err := NewSplitter(Config{Size: 300, Overlap: 0, Separators: []string{""}})
	require.NoError(t, err)
	text := strings.Repeat("é", 1000)

	segments := s.SplitText(text)
	require.Len(t, segments, 4)
	for _, seg := range segments[:3] {
		assert.Equal(t, 300, utf8.RuneCountInString(seg.Content))
		assert.True(t, utf8.ValidString(seg.Content))
	}
	assert.Equal(t, 600, segments[1].Offset)
	assert.Equal(t, text, stitch(segments))
}

func TestSplitText_PrefersParagraphs(t *testing.T) {
	s, err := NewSplitter(Config{Size: 30, Overlap: 0})
	require.NoError(t, err)

	text := "First paragraph here.\n\nSecond paragraph here."
	segments := s.SplitText(text)
	require.Len(t, segments, 2)
	assert.Equal(t, "First paragraph here.\n\n", segments[0].Content)
	assert.Equal(t, "Second paragraph here.", segments[1].Content)
}

func TestSplitPages(t *testing.T) {
	s, err := NewSplitter(Config{Size: 30, Overlap: 0})
	require.NoError(t, err)

	pages := []core.Page{
		{Content: "First paragraph here.\n\nSecond paragraph here.", Metadata: core.Metadata{core.MetaSource: "/f.txt"}},
		{Content: "   ", Metadata: core.Metadata{}},
		{Content: "Third page.", Metadata: nil},
	}

	chunks := s.SplitPages(pages)
	require.Len(t, chunks, 3)

	expect := []struct {
		page, index, offset int
	}{
		{0, 0, 0},
		{0, 1, 23},
		{2, 2, 0},
	}
	for i, e := range expect {
		page, _ := chunks[i].Metadata.Int(core.MetaPageIndex)
		index, _ := chunks[i].Metadata.Int(core.MetaChunkIndex)
		offset, _ := chunks[i].Metadata.Int(core.MetaStartOffset)
		assert.Equal(t, e.page, page)
		assert.Equal(t, e.index, index)
		assert.Equal(t, e.offset, offset)
	}
	assert.Equal(t, "/f.txt", chunks[1].Metadata[core.MetaSource])
	assert.Equal(t, "Third page.", chunks[2].Content)

	// The page's own metadata is untouched
	assert.NotContains(t, pages[0].Metadata, core.MetaChunkIndex)
}
