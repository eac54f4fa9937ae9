package recommend

import (
	"sort"

	"github.com/ilmhub/lms-ai-back/internal/domain"
)

const (
	weightSubjectAffinity  = 0.4
	weightProgression      = 0.4
	featuredBonus          = 0.2
	weightCurriculum       = 0.4
	weightCollaborative    = 0.3
	weightContentStandIn   = 0.3
	popularReasonThreshold = 0.5
)

// BuildProfile derives a learner profile from collaborator-supplied
// enrollment and progress records. The profile is recomputed on every call
// and never cached, so it always reflects the latest data.
func BuildProfile(
	userID string,
	enrollments []domain.Enrollment,
	progress []domain.ProgressRecord,
	coursesByID map[string]domain.CourseCandidate,
) domain.LearnerProfile {
	profile := domain.LearnerProfile{
		UserID:           userID,
		SubjectHistogram: make(map[domain.Subject]int),
	}

	var progressSum float64
	for _, enrollment := range enrollments {
		if enrollment.UserID != userID {
			continue
		}
		profile.EnrolledCourseIDs = append(profile.EnrolledCourseIDs, enrollment.CourseID)
		progressSum += enrollment.Progress

		course, known := coursesByID[enrollment.CourseID]
		if known {
			profile.SubjectHistogram[course.Subject]++
			if profile.AgeTier == "" {
				profile.AgeTier = course.AgeTier
			}
		}
		if enrollment.Status == domain.EnrollmentCompleted {
			profile.CompletedCourseIDs = append(profile.CompletedCourseIDs, enrollment.CourseID)
			if known {
				profile.DifficultyHistory = append(profile.DifficultyHistory, course.Difficulty)
			}
		}
	}
	if len(profile.EnrolledCourseIDs) > 0 {
		profile.AverageProgress = progressSum / float64(len(profile.EnrolledCourseIDs))
	}

	for _, record := range progress {
		if record.UserID == userID {
			profile.TotalTimeSpent += record.TimeSpent
		}
	}

	return profile
}

// Recommend scores un-enrolled candidates against the learner profile and
// returns the top results sorted by score.
func Recommend(
	profile domain.LearnerProfile,
	candidates []domain.CourseCandidate,
	limit int,
) []domain.Recommendation {
	if limit <= 0 {
		limit = 5
	}

	eligible := filterEnrolled(profile, candidates)
	if len(eligible) == 0 {
		return []domain.Recommendation{}
	}

	if len(profile.EnrolledCourseIDs) == 0 {
		return coldStart(eligible, limit)
	}

	maxEnrollments := 0
	for _, candidate := range eligible {
		if candidate.CurrentEnrollments > maxEnrollments {
			maxEnrollments = candidate.CurrentEnrollments
		}
	}

	recommendations := make([]domain.Recommendation, 0, len(eligible))
	for _, candidate := range eligible {
		fit := curriculumFit(profile, candidate)

		collaborative := 0.0
		if maxEnrollments > 0 {
			// Batch-relative on purpose: popularity is normalized against the
			// current candidate set, not a global maximum.
			collaborative = float64(candidate.CurrentEnrollments) / float64(maxEnrollments)
		}

		// Curriculum fit is double-weighted as a stand-in for the content
		// similarity signal supplied later by the embedding boost.
		total := weightCurriculum*fit + weightCollaborative*collaborative + weightContentStandIn*fit

		recommendations = append(recommendations, domain.Recommendation{
			CourseID:   candidate.ID,
			Score:      clamp01(total),
			Reason:     chooseReason(profile, candidate, collaborative),
			Difficulty: candidate.Difficulty,
			Subject:    candidate.Subject,
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})
	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}
	return recommendations
}

// coldStart is the zero-history policy: rank purely by community popularity,
// featured courses winning ties.
func coldStart(candidates []domain.CourseCandidate, limit int) []domain.Recommendation {
	sorted := make([]domain.CourseCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CurrentEnrollments != sorted[j].CurrentEnrollments {
			return sorted[i].CurrentEnrollments > sorted[j].CurrentEnrollments
		}
		return sorted[i].IsFeatured && !sorted[j].IsFeatured
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	recommendations := make([]domain.Recommendation, 0, len(sorted))
	for _, candidate := range sorted {
		reason := "Popular in the community"
		if candidate.IsFeatured {
			reason = "Featured"
		}
		recommendations = append(recommendations, domain.Recommendation{
			CourseID:   candidate.ID,
			Score:      1.0 / float64(len(recommendations)+1),
			Reason:     reason,
			Difficulty: candidate.Difficulty,
			Subject:    candidate.Subject,
		})
	}
	return recommendations
}

func curriculumFit(profile domain.LearnerProfile, candidate domain.CourseCandidate) float64 {
	timesStudied := float64(profile.SubjectHistogram[candidate.Subject])
	affinity := timesStudied / 3.0
	if affinity > 1 {
		affinity = 1
	}

	fit := weightSubjectAffinity*affinity + weightProgression*progressionCredit(profile, candidate)
	if candidate.IsFeatured {
		fit += featuredBonus
	}
	return clamp01(fit)
}

// progressionCredit rewards the next difficulty step: full credit exactly one
// level above the hardest completed course, half credit at the same level,
// minimal credit otherwise.
func progressionCredit(profile domain.LearnerProfile, candidate domain.CourseCandidate) float64 {
	highest := profile.HighestCompletedLevel()
	level := domain.DifficultyLevel(candidate.Difficulty)
	switch {
	case level == highest+1:
		return 1.0
	case level == highest:
		return 0.5
	default:
		return 0.1
	}
}

func chooseReason(profile domain.LearnerProfile, candidate domain.CourseCandidate, collaborative float64) string {
	if profile.SubjectHistogram[candidate.Subject] > 0 {
		return "Matches your " + string(candidate.Subject) + " studies"
	}
	if candidate.IsFeatured {
		return "Featured"
	}
	if collaborative > popularReasonThreshold {
		return "Popular among similar learners"
	}
	return "Expands your learning path"
}

func filterEnrolled(profile domain.LearnerProfile, candidates []domain.CourseCandidate) []domain.CourseCandidate {
	enrolled := make(map[string]struct{}, len(profile.EnrolledCourseIDs))
	for _, id := range profile.EnrolledCourseIDs {
		enrolled[id] = struct{}{}
	}

	eligible := make([]domain.CourseCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if _, already := enrolled[candidate.ID]; already {
			continue
		}
		eligible = append(eligible, candidate)
	}
	return eligible
}

func clamp01(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
