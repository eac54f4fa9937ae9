package chunker

import (
	"github.com/ilmhub/lms-ai-back/internal/domain"
)

// The inference models size their context in tokens; chunk geometry is
// expressed in tokens and converted to characters at a fixed ratio.
const (
	CharsPerToken = 4

	DefaultWindowTokens  = 500
	DefaultOverlapTokens = 50

	DefaultWindowChars  = DefaultWindowTokens * CharsPerToken
	DefaultOverlapChars = DefaultOverlapTokens * CharsPerToken
)

type Chunker struct {
	windowChars  int
	overlapChars int
}

func New(windowChars, overlapChars int) *Chunker {
	if windowChars <= 0 {
		windowChars = DefaultWindowChars
	}
	if overlapChars < 0 || overlapChars >= windowChars {
		overlapChars = DefaultOverlapChars
		if overlapChars >= windowChars {
			overlapChars = windowChars / 10
		}
	}
	return &Chunker{windowChars: windowChars, overlapChars: overlapChars}
}

// Chunk splits text into overlapping windows. The split is pure and
// deterministic: identical input always yields identical boundaries.
// Consecutive windows overlap so a concept spanning a boundary is fully
// contained in at least one chunk. Embeddings are filled in later by the
// index.
func (c *Chunker) Chunk(text string) []domain.ContentChunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return []domain.ContentChunk{}
	}

	stride := c.windowChars - c.overlapChars
	chunks := make([]domain.ContentChunk, 0, len(runes)/stride+1)

	for start := 0; start < len(runes); start += stride {
		end := start + c.windowChars
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, domain.ContentChunk{
			ChunkIndex: len(chunks),
			Text:       string(runes[start:end]),
			CharStart:  start,
			CharEnd:    end,
		})

		if end == len(runes) {
			break
		}
	}

	return chunks
}
