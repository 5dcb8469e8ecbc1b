package ingest

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/msalmanai62/rag-bot/internal/index"
)

// Splitter cuts text into overlapping chunks measured in runes, so
// multi-byte content never splits mid-character. Each chunk carries a
// start_index metadata entry with its rune offset in the source text.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter producing chunks of at most chunkSize
// runes with overlap runes shared between neighbors. Invalid values
// are clamped so the splitter always makes progress.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize < 1 {
		chunkSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split cuts text into chunks tagged with the given source name.
// Empty text yields no chunks.
func (s *Splitter) Split(text, source string) []index.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.chunkSize - s.overlap
	var chunks []index.Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+s.chunkSize, len(runes))
		chunks = append(chunks, index.Chunk{
			ID:      uuid.New().String(),
			Content: string(runes[start:end]),
			Metadata: map[string]string{
				"source":      source,
				"start_index": strconv.Itoa(start),
			},
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
