package service

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/index"
	"github.com/ilmhub/lms-ai-back/internal/recommend"
)

const (
	boostScoreWeight      = 0.6
	boostScoreFloor       = 0.4
	boostReason           = "Similar to courses you've completed"
	defaultRecommendLimit = 5
)

// SimilaritySearcher is the slice of the embedding index the recommendation
// boost needs.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, query string, opts index.SearchOptions) ([]domain.SearchResult, error)
}

type RecommendationsDependencies struct {
	Searcher SimilaritySearcher
	Logger   *log.Logger
}

// RecommendationsService wraps the pure scoring engine with the optional
// embedding boost. The boost is strictly additive: any failure on the vector
// path leaves the engine's output untouched.
type RecommendationsService struct {
	searcher SimilaritySearcher
	logger   *log.Logger
}

func NewRecommendationsService(deps RecommendationsDependencies) *RecommendationsService {
	return &RecommendationsService{
		searcher: deps.Searcher,
		logger:   deps.Logger,
	}
}

type RecommendInput struct {
	UserID      string
	Enrollments []domain.Enrollment
	Progress    []domain.ProgressRecord
	Candidates  []domain.CourseCandidate
	Limit       int
}

func (s *RecommendationsService) Recommend(ctx context.Context, input RecommendInput) []domain.Recommendation {
	coursesByID := make(map[string]domain.CourseCandidate, len(input.Candidates))
	for _, candidate := range input.Candidates {
		coursesByID[candidate.ID] = candidate
	}

	profile := recommend.BuildProfile(input.UserID, input.Enrollments, input.Progress, coursesByID)

	// Every eligible candidate is scored before the boost runs; a course the
	// engine alone ranks past the cut can still surface once boosted, so
	// truncation happens last.
	recommendations := recommend.Recommend(profile, input.Candidates, len(input.Candidates))
	s.applyEmbeddingBoost(ctx, profile, coursesByID, recommendations)

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})

	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecommendLimit
	}
	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}
	return recommendations
}

// applyEmbeddingBoost re-scores candidates that are semantically close to the
// learner's most recently completed course.
func (s *RecommendationsService) applyEmbeddingBoost(
	ctx context.Context,
	profile domain.LearnerProfile,
	coursesByID map[string]domain.CourseCandidate,
	recommendations []domain.Recommendation,
) {
	if s.searcher == nil || len(recommendations) == 0 || len(profile.CompletedCourseIDs) == 0 {
		return
	}

	lastCompletedID := profile.CompletedCourseIDs[len(profile.CompletedCourseIDs)-1]
	completed, known := coursesByID[lastCompletedID]
	if !known {
		return
	}

	query := fmt.Sprintf("%s %s %s", completed.Title, completed.Subject, completed.Difficulty)
	results, err := s.searcher.SearchSimilar(ctx, query, index.SearchOptions{
		ContentType: domain.ContentTypeCourse,
		Limit:       2 * len(recommendations),
	})
	if err != nil {
		s.logf("embedding boost skipped: %v", err)
		return
	}

	matched := make(map[string]struct{}, len(results))
	for _, result := range results {
		matched[result.ContentID] = struct{}{}
	}
	if len(matched) == 0 {
		return
	}

	for i := range recommendations {
		if _, ok := matched[recommendations[i].CourseID]; !ok {
			continue
		}
		boosted := recommendations[i].Score*boostScoreWeight + boostScoreFloor
		if boosted > 1 {
			boosted = 1
		}
		recommendations[i].Score = boosted
		recommendations[i].Reason = boostReason
	}
}

func (s *RecommendationsService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
