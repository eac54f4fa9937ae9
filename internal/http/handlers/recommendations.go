package handlers

import (
	"net/http"
	"strings"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/service"
)

type recommendationsRequest struct {
	UserID      string                   `json:"user_id"`
	Enrollments []domain.Enrollment      `json:"enrollments,omitempty"`
	Progress    []domain.ProgressRecord  `json:"progress,omitempty"`
	Candidates  []domain.CourseCandidate `json:"candidates"`
	Limit       int                      `json:"limit,omitempty"`
}

func (api *API) Recommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request recommendationsRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(request.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if len(request.Candidates) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "candidates are required")
		return
	}

	recommendations := api.recommendations.Recommend(r.Context(), service.RecommendInput{
		UserID:      request.UserID,
		Enrollments: request.Enrollments,
		Progress:    request.Progress,
		Candidates:  request.Candidates,
		Limit:       request.Limit,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":         request.UserID,
		"recommendations": recommendations,
	})
}
