package service

import (
	"context"
	"errors"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/index"
)

var ErrSearchDisabled = errors.New("search is disabled")

// ContentIndex is the index surface the HTTP layer consumes.
type ContentIndex interface {
	IndexContent(ctx context.Context, contentType domain.ContentType, contentID string, title string, text string, metadata domain.ChunkMetadata) (int, error)
	RemoveContent(ctx context.Context, contentType domain.ContentType, contentID string) error
	HybridSearch(ctx context.Context, query string, opts index.SearchOptions) []domain.SearchResult
}

type SearchDependencies struct {
	Index   ContentIndex
	Enabled bool
}

// SearchService gates the embedding index behind the search feature flag.
// When disabled, requests are refused before touching the index.
type SearchService struct {
	index   ContentIndex
	enabled bool
}

func NewSearchService(deps SearchDependencies) *SearchService {
	return &SearchService{index: deps.Index, enabled: deps.Enabled}
}

func (s *SearchService) Enabled() bool {
	return s.enabled
}

func (s *SearchService) IndexContent(
	ctx context.Context,
	contentType domain.ContentType,
	contentID string,
	title string,
	text string,
	metadata domain.ChunkMetadata,
) (int, error) {
	if !s.enabled {
		return 0, ErrSearchDisabled
	}
	return s.index.IndexContent(ctx, contentType, contentID, title, text, metadata)
}

func (s *SearchService) RemoveContent(ctx context.Context, contentType domain.ContentType, contentID string) error {
	if !s.enabled {
		return ErrSearchDisabled
	}
	return s.index.RemoveContent(ctx, contentType, contentID)
}

func (s *SearchService) Search(ctx context.Context, query string, opts index.SearchOptions) ([]domain.SearchResult, error) {
	if !s.enabled {
		return nil, ErrSearchDisabled
	}
	return s.index.HybridSearch(ctx, query, opts), nil
}
