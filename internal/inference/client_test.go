package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"The five pillars of Islam are...","done":true}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL: server.URL,
		Enabled: true,
		Timeout: 2 * time.Second,
	})

	result, err := client.Generate(context.Background(), GenerateRequest{
		Prompt:      "Summarize the five pillars",
		System:      "You are a teaching assistant",
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if result.Text == "" {
		t.Fatalf("expected non-empty text")
	}
}

func TestClientGenerateRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		current := atomic.AddInt32(&calls, 1)
		if current == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"loading model"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"ok","done":true}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Enabled:    true,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})

	result, err := client.Generate(context.Background(), GenerateRequest{Prompt: "test"})
	if err != nil {
		t.Fatalf("expected success after retry, got err=%v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("expected text %q, got %q", "ok", result.Text)
	}
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}
}

func TestClientGenerateSurfacesLastErrorAfterRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Enabled:    true,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
	})

	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "test"})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	var httpErr *inferenceHTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected inferenceHTTPError, got %T: %v", err, err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestClientDisabledShortCircuits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Enabled: false})

	if client.Available() {
		t.Fatalf("expected Available=false when disabled")
	}
	if _, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"}); !errors.Is(err, ErrInferenceDisabled) {
		t.Fatalf("expected ErrInferenceDisabled, got %v", err)
	}
	if _, err := client.Embed(context.Background(), []string{"x"}, ""); !errors.Is(err, ErrInferenceDisabled) {
		t.Fatalf("expected ErrInferenceDisabled, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("disabled client must not reach the network, saw %d calls", calls)
	}
}

func TestClientEmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3],[0.4,0.5,0.6]]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Enabled: true, Timeout: 2 * time.Second})

	vectors, err := client.Embed(context.Background(), []string{"first chunk", "second chunk"}, "")
	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if len(vectors[0]) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vectors[0]))
	}
}

func TestClientEmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2]]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Enabled: true, Timeout: 2 * time.Second})

	if _, err := client.Embed(context.Background(), []string{"a", "b"}, ""); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestClientHealthListsModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"nomic-embed-text"}]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Enabled: true})

	status := client.Health(context.Background())
	if !status.Available {
		t.Fatalf("expected available health status")
	}
	if len(status.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(status.Models))
	}
}

func TestClientHealthUnreachable(t *testing.T) {
	client := NewClient(ClientConfig{
		BaseURL:       "http://127.0.0.1:1",
		Enabled:       true,
		HealthTimeout: 200 * time.Millisecond,
	})

	status := client.Health(context.Background())
	if status.Available {
		t.Fatalf("expected unavailable status for unreachable server")
	}
	if !status.Enabled {
		t.Fatalf("expected enabled=true in status")
	}
}

func TestModelRouterSelectsConfiguredModels(t *testing.T) {
	router := NewModelRouter(ModelRouterConfig{
		DefaultModel: "llama3.1:8b",
		QuizModel:    "qwen2.5:14b",
	})

	quiz := router.Select(TaskQuiz)
	if quiz.Model != "qwen2.5:14b" {
		t.Fatalf("expected quiz model override, got %s", quiz.Model)
	}
	moderation := router.Select(TaskModeration)
	if moderation.Model != "llama3.1:8b" {
		t.Fatalf("expected default model for moderation, got %s", moderation.Model)
	}
	if moderation.Temperature >= quiz.Temperature {
		t.Fatalf("expected moderation to run cooler than quiz generation")
	}
}
