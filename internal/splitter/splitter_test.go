package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Empty(t *testing.T) {
	s := New(500, 50)
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\n  \t"))
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s := New(500, 50)
	chunks := s.Split("short readme content")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short readme content", chunks[0])
}

func TestSplit_Deterministic(t *testing.T) {
	s := New(120, 20)
	text := strings.Repeat("some code line here\n", 40)

	first := s.Split(text)
	second := s.Split(text)
	assert.Equal(t, first, second)
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	s := New(120, 20)
	text := strings.Repeat("def handler(request):\n    return render(request)\n\n", 30)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 120, "chunk %d exceeds the bound", i)
	}
}

func TestSplit_CoversAllLines(t *testing.T) {
	s := New(100, 10)

	var lines []string
	var b strings.Builder
	for i := 0; i < 25; i++ {
		line := strings.Repeat(string(rune('a'+i%26)), 30)
		lines = append(lines, line)
		b.WriteString(line)
		b.WriteByte('\n')
	}

	chunks := s.Split(b.String())
	require.NotEmpty(t, chunks)

	joined := strings.Join(chunks, "\n")
	for i, line := range lines {
		assert.Contains(t, joined, line, "line %d missing from chunks", i)
	}
}

func TestSplit_OverlapSharedAcrossBoundary(t *testing.T) {
	s := New(500, 50)

	// 20 lines of 29 characters: 599 characters total. The first chunk packs
	// 16 lines (479 chars), the overlap carries line 16 into the second.
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString(strings.Repeat(string(rune('a'+i)), 29))
		if i < 19 {
			b.WriteByte('\n')
		}
	}

	chunks := s.Split(b.String())
	require.Len(t, chunks, 2)

	firstLineOfSecond := strings.SplitN(chunks[1], "\n", 2)[0]
	assert.Contains(t, chunks[0], firstLineOfSecond, "overlap not carried across the boundary")
}

func TestSplit_HardCutWithoutSeparators(t *testing.T) {
	s := New(500, 50)
	text := strings.Repeat("x", 1200) // no separator anywhere

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	assert.Len(t, chunks[2], 300)

	// Consecutive windows share exactly the overlap.
	assert.Equal(t, chunks[0][450:], chunks[1][:50])
	assert.Equal(t, chunks[1][450:], chunks[2][:50])
}

func TestSplit_PrefersParagraphBreaks(t *testing.T) {
	s := New(60, 0)
	text := "first paragraph of text\n\nsecond paragraph of text\n\nthird paragraph of text"

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		// No chunk should cut inside a paragraph when paragraphs fit.
		assert.NotContains(t, c, "paragraph of\n")
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(0, -1)
	assert.Equal(t, DefaultChunkSize, s.ChunkSize)
	assert.Equal(t, DefaultOverlap, s.Overlap)
}
