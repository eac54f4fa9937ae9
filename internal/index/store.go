package index

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ilmhub/lms-ai-back/internal/domain"
)

type ScoredChunk struct {
	Chunk domain.ContentChunk
	Score float64
}

// ChunkStore persists chunk vectors and metadata per (contentType, contentId).
// ReplaceContent swaps the whole chunk set for one content item; RemoveContent
// is idempotent. SimilarChunks ranks by vector similarity, KeywordChunks is
// the recency-ordered substring scan backing the hybrid fallback.
type ChunkStore interface {
	ReplaceContent(ctx context.Context, contentType domain.ContentType, contentID string, chunks []domain.ContentChunk) error
	RemoveContent(ctx context.Context, contentType domain.ContentType, contentID string) error
	SimilarChunks(ctx context.Context, vector []float32, contentType domain.ContentType, limit int) ([]ScoredChunk, error)
	KeywordChunks(ctx context.Context, query string, contentType domain.ContentType, limit int) ([]domain.ContentChunk, error)
	CountChunks(ctx context.Context, contentType domain.ContentType, contentID string) (int, error)
}

// MemoryChunkStore is the default store when no database is configured. All
// mutations are serialized behind one mutex; reads take snapshots.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks map[string][]domain.ContentChunk
}

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		chunks: make(map[string][]domain.ContentChunk),
	}
}

func contentKey(contentType domain.ContentType, contentID string) string {
	return string(contentType) + "/" + contentID
}

func (s *MemoryChunkStore) ReplaceContent(
	_ context.Context,
	contentType domain.ContentType,
	contentID string,
	chunks []domain.ContentChunk,
) error {
	cloned := make([]domain.ContentChunk, len(chunks))
	copy(cloned, chunks)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := contentKey(contentType, contentID)
	if len(cloned) == 0 {
		delete(s.chunks, key)
		return nil
	}
	s.chunks[key] = cloned
	return nil
}

func (s *MemoryChunkStore) RemoveContent(
	_ context.Context,
	contentType domain.ContentType,
	contentID string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, contentKey(contentType, contentID))
	return nil
}

func (s *MemoryChunkStore) SimilarChunks(
	_ context.Context,
	vector []float32,
	contentType domain.ContentType,
	limit int,
) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 40
	}

	s.mu.RLock()
	scored := make([]ScoredChunk, 0, 64)
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if contentType != "" && chunk.ContentType != contentType {
				continue
			}
			if len(chunk.Embedding) == 0 {
				continue
			}
			scored = append(scored, ScoredChunk{
				Chunk: chunk,
				Score: cosineSimilarity(vector, chunk.Embedding),
			})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (s *MemoryChunkStore) KeywordChunks(
	_ context.Context,
	query string,
	contentType domain.ContentType,
	limit int,
) ([]domain.ContentChunk, error) {
	if limit <= 0 {
		limit = 40
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []domain.ContentChunk{}, nil
	}

	s.mu.RLock()
	matches := make([]domain.ContentChunk, 0, 32)
	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if contentType != "" && chunk.ContentType != contentType {
				continue
			}
			if strings.Contains(strings.ToLower(chunk.Title), needle) ||
				strings.Contains(strings.ToLower(chunk.Text), needle) {
				matches = append(matches, chunk)
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryChunkStore) CountChunks(
	_ context.Context,
	contentType domain.ContentType,
	contentID string,
) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.chunks[contentKey(contentType, contentID)]), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
