package chunker

import (
	"strings"
	"testing"
)

func reconstruct(t *testing.T, chunks []chunkView) string {
	t.Helper()
	var builder strings.Builder
	covered := 0
	for _, chunk := range chunks {
		if chunk.start > covered {
			t.Fatalf("gap before chunk starting at %d, covered up to %d", chunk.start, covered)
		}
		runes := []rune(chunk.text)
		builder.WriteString(string(runes[covered-chunk.start:]))
		covered = chunk.end
	}
	return builder.String()
}

type chunkView struct {
	start int
	end   int
	text  string
}

func TestChunkReconstructsOriginalText(t *testing.T) {
	texts := []string{
		"short text well below the window size",
		strings.Repeat("In the name of Allah, the Most Gracious, the Most Merciful. ", 120),
		strings.Repeat("x", 4000) + strings.Repeat("y", 1500),
	}

	chunker := New(0, 0)
	for _, text := range texts {
		chunks := chunker.Chunk(text)
		views := make([]chunkView, 0, len(chunks))
		for _, chunk := range chunks {
			views = append(views, chunkView{start: chunk.CharStart, end: chunk.CharEnd, text: chunk.Text})
		}
		if got := reconstruct(t, views); got != text {
			t.Fatalf("de-overlapped chunks do not reconstruct input (len %d vs %d)", len(got), len(text))
		}
	}
}

func TestChunkFiveThousandCharsYieldsThreeOverlappingChunks(t *testing.T) {
	text := strings.Repeat("a", 5000)
	chunks := New(2000, 200).Chunk(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].CharStart != 0 || chunks[0].CharEnd != 2000 {
		t.Fatalf("unexpected first window: [%d,%d)", chunks[0].CharStart, chunks[0].CharEnd)
	}
	if chunks[1].CharStart != 1800 {
		t.Fatalf("expected second window to start inside the first, got %d", chunks[1].CharStart)
	}
	if chunks[2].CharEnd != 5000 {
		t.Fatalf("expected final window to reach end of text, got %d", chunks[2].CharEnd)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].CharStart >= chunks[i-1].CharEnd {
			t.Fatalf("windows %d and %d do not overlap", i-1, i)
		}
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	text := strings.Repeat("Surah Al-Fatiha commentary. ", 300)
	chunker := New(0, 0)

	first := chunker.Chunk(text)
	second := chunker.Chunk(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text || first[i].CharStart != second[i].CharStart {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}

func TestChunkEmptyAndTinyInputs(t *testing.T) {
	chunker := New(0, 0)

	if got := chunker.Chunk(""); len(got) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(got))
	}

	chunks := chunker.Chunk("bismillah")
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "bismillah" || chunks[0].ChunkIndex != 0 {
		t.Fatalf("unexpected chunk: %+v", chunks[0])
	}
}
