package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimitKeysClientsByBearerToken(t *testing.T) {
	handler := RateLimit(1, 1)(noContentHandler())

	send := func(token string) int {
		request := httptest.NewRequest(http.MethodPost, "/v1/search", nil)
		request.RemoteAddr = "10.0.0.7:41000"
		if token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder.Code
	}

	if code := send("cms-a"); code != http.StatusNoContent {
		t.Fatalf("first request for cms-a should pass, got %d", code)
	}
	if code := send("cms-a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for cms-a should be limited, got %d", code)
	}
	// Same remote address, different token: independent bucket.
	if code := send("cms-b"); code != http.StatusNoContent {
		t.Fatalf("first request for cms-b should pass, got %d", code)
	}
}

func TestRateLimitNeverLimitsHealthProbes(t *testing.T) {
	handler := RateLimit(1, 1)(noContentHandler())

	for i := 0; i < 10; i++ {
		request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		request.RemoteAddr = "10.0.0.8:41000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusNoContent {
			t.Fatalf("health probe %d was limited: %d", i, recorder.Code)
		}
	}
}
