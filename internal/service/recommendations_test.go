package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/index"
)

type stubSearcher struct {
	results []domain.SearchResult
	err     error
	queries []string
}

func (s *stubSearcher) SearchSimilar(_ context.Context, query string, _ index.SearchOptions) ([]domain.SearchResult, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func boostFixture() RecommendInput {
	return RecommendInput{
		UserID: "u1",
		Enrollments: []domain.Enrollment{
			{UserID: "u1", CourseID: "tajweed-1", Status: domain.EnrollmentCompleted, Progress: 100},
		},
		Candidates: []domain.CourseCandidate{
			{ID: "tajweed-1", Title: "Tajweed Basics", Subject: domain.SubjectQuran, Difficulty: domain.DifficultyBeginner},
			{ID: "tajweed-2", Title: "Tajweed Rules", Subject: domain.SubjectQuran, Difficulty: domain.DifficultyIntermediate, CurrentEnrollments: 5},
			{ID: "fiqh-1", Title: "Intro to Fiqh", Subject: domain.SubjectFiqh, Difficulty: domain.DifficultyBeginner, CurrentEnrollments: 40},
		},
		Limit: 5,
	}
}

func TestRecommendBoostsSemanticallySimilarCourses(t *testing.T) {
	searcher := &stubSearcher{results: []domain.SearchResult{
		{ContentType: domain.ContentTypeCourse, ContentID: "tajweed-2", Score: 0.9},
	}}
	svc := NewRecommendationsService(RecommendationsDependencies{Searcher: searcher})

	recommendations := svc.Recommend(context.Background(), boostFixture())
	if len(recommendations) == 0 {
		t.Fatalf("expected recommendations")
	}
	if recommendations[0].CourseID != "tajweed-2" {
		t.Fatalf("expected boosted course first, got %+v", recommendations)
	}
	if recommendations[0].Reason != "Similar to courses you've completed" {
		t.Fatalf("unexpected reason: %s", recommendations[0].Reason)
	}
	if len(searcher.queries) != 1 {
		t.Fatalf("expected one similarity query, got %d", len(searcher.queries))
	}
}

func TestBoostedCourseSurfacesAboveTruncationCut(t *testing.T) {
	searcher := &stubSearcher{results: []domain.SearchResult{
		{ContentType: domain.ContentTypeCourse, ContentID: "tajweed-2", Score: 0.9},
	}}
	svc := NewRecommendationsService(RecommendationsDependencies{Searcher: searcher})

	// With limit 1 the popular fiqh course leads on engine score alone;
	// the boost must still be able to put the similar course on top.
	input := boostFixture()
	input.Limit = 1
	recommendations := svc.Recommend(context.Background(), input)

	if len(recommendations) != 1 {
		t.Fatalf("expected exactly one recommendation, got %d", len(recommendations))
	}
	if recommendations[0].CourseID != "tajweed-2" {
		t.Fatalf("expected boosted course to displace the popular leader, got %+v", recommendations[0])
	}
	if recommendations[0].Reason != "Similar to courses you've completed" {
		t.Fatalf("unexpected reason: %s", recommendations[0].Reason)
	}
}

func TestRecommendSurvivesSearchFailure(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("vector store down")}
	svc := NewRecommendationsService(RecommendationsDependencies{Searcher: searcher})

	recommendations := svc.Recommend(context.Background(), boostFixture())
	if len(recommendations) != 2 {
		t.Fatalf("expected engine output to survive boost failure, got %d", len(recommendations))
	}
	for _, recommendation := range recommendations {
		if recommendation.Reason == "Similar to courses you've completed" {
			t.Fatalf("expected no boost reason after failure: %+v", recommendation)
		}
	}
}

func TestRecommendSkipsBoostWithoutCompletedCourses(t *testing.T) {
	searcher := &stubSearcher{}
	svc := NewRecommendationsService(RecommendationsDependencies{Searcher: searcher})

	recommendations := svc.Recommend(context.Background(), RecommendInput{
		UserID: "new-user",
		Candidates: []domain.CourseCandidate{
			{ID: "c1", Title: "Course", CurrentEnrollments: 10},
		},
		Limit: 3,
	})
	if len(recommendations) != 1 {
		t.Fatalf("expected cold-start recommendation, got %d", len(recommendations))
	}
	if len(searcher.queries) != 0 {
		t.Fatalf("expected no similarity query for cold start")
	}
}

func TestRecommendNeverRecommendsEnrolled(t *testing.T) {
	svc := NewRecommendationsService(RecommendationsDependencies{})

	recommendations := svc.Recommend(context.Background(), boostFixture())
	for _, recommendation := range recommendations {
		if recommendation.CourseID == "tajweed-1" {
			t.Fatalf("enrolled course leaked into recommendations")
		}
	}
}
