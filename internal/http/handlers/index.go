package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ilmhub/lms-ai-back/internal/domain"
	"github.com/ilmhub/lms-ai-back/internal/index"
	"github.com/ilmhub/lms-ai-back/internal/inference"
	"github.com/ilmhub/lms-ai-back/internal/service"
)

type indexContentRequest struct {
	ContentType string               `json:"content_type"`
	ContentID   string               `json:"content_id"`
	Title       string               `json:"title"`
	Text        string               `json:"text"`
	Metadata    domain.ChunkMetadata `json:"metadata,omitempty"`
}

type searchRequest struct {
	Query       string `json:"query"`
	ContentType string `json:"content_type,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

func (api *API) IndexContent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.indexContent(w, r)
	case http.MethodDelete:
		api.removeContent(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (api *API) indexContent(w http.ResponseWriter, r *http.Request) {
	var request indexContentRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}

	contentType, err := parseContentType(request.ContentType)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "content_type must be course, lesson or quiz")
		return
	}
	contentID := strings.TrimSpace(request.ContentID)
	if contentID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "content_id is required")
		return
	}

	chunks, err := api.search.IndexContent(r.Context(), contentType, contentID, request.Title, request.Text, request.Metadata)
	if err != nil {
		writeIndexError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"content_type": contentType,
		"content_id":   contentID,
		"chunks":       chunks,
	})
}

func (api *API) removeContent(w http.ResponseWriter, r *http.Request) {
	contentType, err := parseContentType(r.URL.Query().Get("content_type"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "content_type must be course, lesson or quiz")
		return
	}
	contentID := strings.TrimSpace(r.URL.Query().Get("content_id"))
	if contentID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "content_id is required")
		return
	}

	if err := api.search.RemoveContent(r.Context(), contentType, contentID); err != nil {
		writeIndexError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content_type": contentType,
		"content_id":   contentID,
		"removed":      true,
	})
}

func (api *API) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var request searchRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}

	opts := index.SearchOptions{Limit: request.Limit}
	if strings.TrimSpace(request.ContentType) != "" {
		contentType, err := parseContentType(request.ContentType)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "content_type must be course, lesson or quiz")
			return
		}
		opts.ContentType = contentType
	}

	results, err := api.search.Search(r.Context(), request.Query, opts)
	if err != nil {
		writeIndexError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   request.Query,
		"results": results,
	})
}

func parseContentType(value string) (domain.ContentType, error) {
	contentType := domain.ContentType(strings.ToLower(strings.TrimSpace(value)))
	switch contentType {
	case domain.ContentTypeCourse, domain.ContentTypeLesson, domain.ContentTypeQuiz:
		return contentType, nil
	default:
		return "", errInvalidPayload
	}
}

func writeIndexError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrSearchDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "search_disabled", "search is disabled on this deployment")
	case errors.Is(err, inference.ErrInferenceDisabled):
		writeError(w, r, http.StatusServiceUnavailable, "inference_unavailable", "embedding service is not available")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "index operation failed")
	}
}
