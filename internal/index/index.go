package index

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ilmhub/lms-ai-back/internal/chunker"
	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/inference"
)

const snippetLength = 200

type SearchOptions struct {
	ContentType domain.ContentType
	Limit       int
}

// Index is the retrieval layer: it chunks content, embeds the chunks, and
// answers similarity and hybrid queries over the chunk store.
type Index struct {
	store      ChunkStore
	embedder   inference.Embedder
	chunker    *chunker.Chunker
	embedModel string
	logger     *log.Logger
}

type Dependencies struct {
	Store      ChunkStore
	Embedder   inference.Embedder
	Chunker    *chunker.Chunker
	EmbedModel string
	Logger     *log.Logger
}

func New(deps Dependencies) *Index {
	if deps.Store == nil {
		deps.Store = NewMemoryChunkStore()
	}
	if deps.Chunker == nil {
		deps.Chunker = chunker.New(0, 0)
	}
	return &Index{
		store:      deps.Store,
		embedder:   deps.Embedder,
		chunker:    deps.Chunker,
		embedModel: deps.EmbedModel,
		logger:     deps.Logger,
	}
}

// IndexContent chunks and embeds one content item, replacing any chunk set
// previously stored for the same id. Empty text clears the item from the
// index so stale chunks never linger. Returns the stored chunk count.
func (ix *Index) IndexContent(
	ctx context.Context,
	contentType domain.ContentType,
	contentID string,
	title string,
	text string,
	metadata domain.ChunkMetadata,
) (int, error) {
	if strings.TrimSpace(text) == "" {
		if err := ix.store.RemoveContent(ctx, contentType, contentID); err != nil {
			return 0, fmt.Errorf("clear empty content: %w", err)
		}
		return 0, nil
	}

	chunks := ix.chunker.Chunk(text)
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}

	if ix.embedder == nil {
		return 0, inference.ErrInferenceDisabled
	}
	vectors, err := ix.embedder.Embed(ctx, texts, ix.embedModel)
	if err != nil {
		return 0, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	now := time.Now().UTC()
	for i := range chunks {
		chunks[i].ContentType = contentType
		chunks[i].ContentID = contentID
		chunks[i].Title = title
		chunks[i].Metadata = metadata
		chunks[i].Embedding = vectors[i]
		chunks[i].UpdatedAt = now
	}

	if err := ix.store.ReplaceContent(ctx, contentType, contentID, chunks); err != nil {
		return 0, fmt.Errorf("replace chunks: %w", err)
	}
	return len(chunks), nil
}

// RemoveContent deletes all chunks for a content item. Removing an id that
// was never indexed is a no-op.
func (ix *Index) RemoveContent(ctx context.Context, contentType domain.ContentType, contentID string) error {
	return ix.store.RemoveContent(ctx, contentType, contentID)
}

// SearchSimilar embeds the query and returns the top distinct content items
// by vector similarity, each carrying its best-scoring chunk's snippet.
func (ix *Index) SearchSimilar(ctx context.Context, query string, opts SearchOptions) ([]domain.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if ix.embedder == nil || !ix.embedder.Available() {
		return nil, inference.ErrInferenceDisabled
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query}, ix.embedModel)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vectors))
	}

	scored, err := ix.store.SimilarChunks(ctx, vectors[0], opts.ContentType, limit*4)
	if err != nil {
		return nil, fmt.Errorf("similar chunks: %w", err)
	}

	results := make([]domain.SearchResult, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, item := range scored {
		key := contentKey(item.Chunk.ContentType, item.Chunk.ContentID)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, domain.SearchResult{
			ContentType: item.Chunk.ContentType,
			ContentID:   item.Chunk.ContentID,
			Title:       item.Chunk.Title,
			Snippet:     makeSnippet(item.Chunk.Text),
			Score:       item.Score,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// HybridSearch prefers the vector path and falls back to a case-insensitive
// keyword scan when inference or the store fails. The fallback never returns
// an error; it is the last line of defense before the caller surfaces one.
func (ix *Index) HybridSearch(ctx context.Context, query string, opts SearchOptions) []domain.SearchResult {
	results, err := ix.SearchSimilar(ctx, query, opts)
	if err == nil {
		return results
	}
	if ix.logger != nil {
		ix.logger.Printf("vector search failed, using keyword fallback: %v", err)
	}
	return ix.keywordFallback(ctx, query, opts)
}

func (ix *Index) keywordFallback(ctx context.Context, query string, opts SearchOptions) []domain.SearchResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	chunks, err := ix.store.KeywordChunks(ctx, query, opts.ContentType, limit*4)
	if err != nil {
		if ix.logger != nil {
			ix.logger.Printf("keyword fallback failed: %v", err)
		}
		return []domain.SearchResult{}
	}

	results := make([]domain.SearchResult, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, chunk := range chunks {
		key := contentKey(chunk.ContentType, chunk.ContentID)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		// Synthetic descending score so both result shapes rank uniformly.
		results = append(results, domain.SearchResult{
			ContentType: chunk.ContentType,
			ContentID:   chunk.ContentID,
			Title:       chunk.Title,
			Snippet:     makeSnippet(chunk.Text),
			Score:       1.0 / float64(len(results)+1),
		})
		if len(results) >= limit {
			break
		}
	}
	return results
}

func makeSnippet(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) <= snippetLength {
		return trimmed
	}
	return string(runes[:snippetLength]) + "..."
}
