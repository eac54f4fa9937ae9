package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func noContentHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth("cms-secret")(noContentHandler())

	request := httptest.NewRequest(http.MethodPost, "/v1/ai/moderate", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if recorder.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected a WWW-Authenticate challenge")
	}
}

func TestAuthRejectsWrongToken(t *testing.T) {
	handler := Auth("cms-secret")(noContentHandler())

	request := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
	request.Header.Set("Authorization", "Bearer wrong")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestAuthAcceptsValidBearerToken(t *testing.T) {
	handler := Auth("cms-secret")(noContentHandler())

	request := httptest.NewRequest(http.MethodPost, "/v1/ai/moderate", nil)
	request.Header.Set("Authorization", "Bearer cms-secret")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestAuthLeavesHealthProbeOpen(t *testing.T) {
	handler := Auth("cms-secret")(noContentHandler())

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestAuthDisabledWithoutConfiguredToken(t *testing.T) {
	handler := Auth("")(noContentHandler())

	request := httptest.NewRequest(http.MethodPost, "/v1/ai/moderate", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}
