package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/policy"
	"github.com/ilmhub/lms-ai-back/internal/quality"
	"github.com/ilmhub/lms-ai-back/internal/service"
	"github.com/ilmhub/lms-ai-back/internal/taskqueue"
)

func (api *API) ModerateContent(w http.ResponseWriter, r *http.Request) {
	api.handleAITask(w, r, domain.JobKindModeration)
}

func (api *API) SummarizeContent(w http.ResponseWriter, r *http.Request) {
	api.handleAITask(w, r, domain.JobKindSummary)
}

func (api *API) SuggestTags(w http.ResponseWriter, r *http.Request) {
	api.handleAITask(w, r, domain.JobKindTags)
}

func (api *API) GenerateQuiz(w http.ResponseWriter, r *http.Request) {
	api.handleAITask(w, r, domain.JobKindQuiz)
}

// handleAITask runs a content task synchronously, or submits it to the queue
// when the request asks for async execution.
func (api *API) handleAITask(w http.ResponseWriter, r *http.Request, kind domain.JobKind) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request aiTaskRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if err := request.validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "content_id and text are required")
		return
	}

	task := api.taskFor(kind, request)

	if request.Async {
		job := api.queue.Submit(kind, task)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id":      job.ID,
			"status":      job.Status,
			"status_url":  "/v1/jobs/" + job.ID,
			"accepted_at": job.CreatedAt.Format(time.RFC3339Nano),
		})
		return
	}

	result, err := task(r.Context())
	if err != nil {
		writeTaskError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(result))
}

func (api *API) taskFor(kind domain.JobKind, request aiTaskRequest) taskqueue.TaskFunc {
	input := request.contentInput()
	return func(ctx context.Context) (json.RawMessage, error) {
		var (
			result any
			err    error
		)
		switch kind {
		case domain.JobKindModeration:
			result, err = api.tasks.Moderate(ctx, input)
		case domain.JobKindSummary:
			result, err = api.tasks.Summarize(ctx, input)
		case domain.JobKindTags:
			result, err = api.tasks.SuggestTags(ctx, input)
		case domain.JobKindQuiz:
			result, err = api.tasks.GenerateQuiz(ctx, service.QuizInput{
				ContentInput:  input,
				QuestionCount: request.QuestionCount,
			})
		default:
			return nil, errors.New("unknown task kind")
		}
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		// Stored results are served verbatim to any poller; they get the
		// same PII scrub as outbound prompts.
		return policy.MaskPIIJSON(encoded), nil
	}
}

func writeTaskError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, inference.ErrInferenceDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "inference_unavailable", "inference service is not available")
	case errors.Is(err, quality.ErrOutputRejected):
		writeError(w, r, http.StatusBadGateway, "invalid_model_output", "model output failed validation")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusGatewayTimeout, "inference_timeout", "inference call timed out")
	default:
		writeError(w, r, http.StatusBadGateway, "inference_failed", "inference call failed")
	}
}
