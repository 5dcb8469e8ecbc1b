package ingest

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmpty(t *testing.T) {
	s := NewSplitter(1000, 200)
	assert.Nil(t, s.Split("", "doc.txt"))
}

func TestSplitSingleChunk(t *testing.T) {
	s := NewSplitter(1000, 200)
	chunks := s.Split("short document", "doc.txt")

	require.Len(t, chunks, 1)
	assert.Equal(t, "short document", chunks[0].Content)
	assert.Equal(t, "0", chunks[0].Metadata["start_index"])
	assert.Equal(t, "doc.txt", chunks[0].Metadata["source"])
	assert.NotEmpty(t, chunks[0].ID)
}

func TestSplitOverlap(t *testing.T) {
	s := NewSplitter(1000, 200)
	text := strings.Repeat("a", 700) + strings.Repeat("b", 700) + strings.Repeat("c", 700)
	chunks := s.Split(text, "doc.txt")

	// 2100 runes, step 800: starts at 0, 800, 1600.
	require.Len(t, chunks, 3)
	runes := []rune(text)
	for i, c := range chunks {
		start, err := strconv.Atoi(c.Metadata["start_index"])
		require.NoError(t, err)
		assert.Equal(t, i*800, start)
		assert.Equal(t, string(runes[start:min(start+1000, len(runes))]), c.Content)
	}

	// Neighboring chunks share the trailing 200 runes.
	head := []rune(chunks[0].Content)
	assert.Equal(t, string(head[800:]), string([]rune(chunks[1].Content)[:200]))
}

func TestSplitMultibyteRunes(t *testing.T) {
	s := NewSplitter(10, 3)
	text := strings.Repeat("é", 25)
	chunks := s.Split(text, "doc.txt")

	for _, c := range chunks {
		for _, r := range c.Content {
			assert.Equal(t, 'é', r, "chunks must never split mid-character")
		}
	}
}

func TestSplitClampsInvalidConfig(t *testing.T) {
	s := NewSplitter(10, 15)
	chunks := s.Split(strings.Repeat("x", 100), "doc.txt")
	assert.NotEmpty(t, chunks, "splitter must make progress even with overlap >= size")
	assert.Less(t, len(chunks), 101)
}
