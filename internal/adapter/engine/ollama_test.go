package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

func testEndpoint(t *testing.T, srv *httptest.Server) *domain.EngineEndpoint {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	return &domain.EngineEndpoint{
		Identity:             domain.EngineOllama,
		Name:                 "test",
		URL:                  u,
		URLString:            srv.URL,
		HealthCheckURL:       u,
		HealthCheckURLString: srv.URL,
	}
}

func TestOllamaAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"hi"},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`))
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(srv.Client())
	resp, err := adapter.Generate(context.Background(), testEndpoint(t, srv), &domain.InferenceRequest{
		ModelID:  "llama3",
		Messages: []domain.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.OutputText != "hi" {
		t.Errorf("expected output 'hi', got %q", resp.OutputText)
	}
	if resp.EngineUsed != domain.EngineOllama {
		t.Errorf("expected engine ollama, got %s", resp.EngineUsed)
	}
}

func TestOllamaAdapter_Generate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(srv.Client())
	_, err := adapter.Generate(context.Background(), testEndpoint(t, srv), &domain.InferenceRequest{ModelID: "llama3"})
	if err == nil {
		t.Error("expected error for 5xx response")
	}
}

func TestOllamaAdapter_Probe_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(srv.Client())
	result := adapter.Probe(context.Background(), testEndpoint(t, srv))
	if !result.Healthy {
		t.Errorf("expected healthy probe, got error type %v", result.ErrorType)
	}
}

func TestOllamaAdapter_Probe_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(srv.Client())
	result := adapter.Probe(context.Background(), testEndpoint(t, srv))
	if result.Healthy {
		t.Error("expected unhealthy probe for 503 response")
	}
	if result.ErrorType != domain.ErrorTypeHTTPError {
		t.Errorf("expected http error type, got %v", result.ErrorType)
	}
}

func TestOllamaAdapter_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	adapter := NewOllamaAdapter(srv.Client())
	resp, err := adapter.Embed(context.Background(), testEndpoint(t, srv), &domain.InferenceRequest{
		ModelID:        "nomic-embed",
		EmbeddingInput: []string{"hello"},
	})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(resp.EmbeddingVector) != 3 {
		t.Errorf("expected 3-dim vector, got %d", len(resp.EmbeddingVector))
	}
}
