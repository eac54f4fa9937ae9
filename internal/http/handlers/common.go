package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/http/middleware"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/service"
	"github.com/ilmhub/lms-ai-back/internal/taskqueue"
)

var errInvalidPayload = errors.New("invalid payload")

const maxContentTextChars = 100_000

// HealthReporter is the slice of the inference client the health endpoint
// reads.
type HealthReporter interface {
	Health(ctx context.Context) inference.HealthStatus
}

type API struct {
	tasks           *service.AITasksService
	search          *service.SearchService
	recommendations *service.RecommendationsService
	queue           *taskqueue.Queue
	inference       HealthReporter
}

func NewAPI(
	tasks *service.AITasksService,
	search *service.SearchService,
	recommendations *service.RecommendationsService,
	queue *taskqueue.Queue,
	inferenceHealth HealthReporter,
) *API {
	return &API{
		tasks:           tasks,
		search:          search,
		recommendations: recommendations,
		queue:           queue,
		inference:       inferenceHealth,
	}
}

type aiTaskRequest struct {
	ContentType   string `json:"content_type"`
	ContentID     string `json:"content_id"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	AgeTier       string `json:"age_tier,omitempty"`
	Async         bool   `json:"async,omitempty"`
	QuestionCount int    `json:"question_count,omitempty"`
}

func (request *aiTaskRequest) validate() error {
	request.ContentID = strings.TrimSpace(request.ContentID)
	if request.ContentID == "" || len(request.ContentID) > 128 {
		return errInvalidPayload
	}
	if strings.TrimSpace(request.Text) == "" || len(request.Text) > maxContentTextChars {
		return errInvalidPayload
	}
	if request.ContentType == "" {
		request.ContentType = string(domain.ContentTypeLesson)
	}
	switch domain.ContentType(request.ContentType) {
	case domain.ContentTypeCourse, domain.ContentTypeLesson, domain.ContentTypeQuiz:
	default:
		return errInvalidPayload
	}
	return nil
}

func (request aiTaskRequest) contentInput() service.ContentInput {
	return service.ContentInput{
		ContentType: request.ContentType,
		ContentID:   request.ContentID,
		Title:       request.Title,
		Text:        request.Text,
		AgeTier:     domain.AgeTier(strings.ToLower(strings.TrimSpace(request.AgeTier))),
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}
