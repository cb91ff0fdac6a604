package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

func TestOpenAICompatAdapter_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"m","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}],"usage":{"prompt_tokens":4,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(domain.EngineVLLM, srv.Client())
	resp, err := adapter.Generate(context.Background(), testEndpoint(t, srv), &domain.InferenceRequest{
		ModelID:  "m",
		Messages: []domain.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.OutputText != "hi there" {
		t.Errorf("expected 'hi there', got %q", resp.OutputText)
	}
	if resp.EngineUsed != domain.EngineVLLM {
		t.Errorf("expected engine vllm, got %s", resp.EngineUsed)
	}
	if resp.TokenCounts.Prompt != 4 || resp.TokenCounts.Completion != 2 {
		t.Errorf("unexpected token counts: %+v", resp.TokenCounts)
	}
}

func TestOpenAICompatAdapter_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"},\"finish_reason\":\"stop\"}]}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(domain.EngineSGLang, srv.Client())
	ch, err := adapter.Stream(context.Background(), testEndpoint(t, srv), &domain.InferenceRequest{
		ModelID:  "m",
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var text string
	sawDone := false
	for chunk := range ch {
		text += chunk.Text
		if chunk.Done {
			sawDone = true
		}
	}

	if text != "hello" {
		t.Errorf("expected accumulated text 'hello', got %q", text)
	}
	if !sawDone {
		t.Error("expected a final chunk with Done=true")
	}
}

func TestOpenAICompatAdapter_Probe_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewOpenAICompatAdapter(domain.EngineTGI, srv.Client())
	result := adapter.Probe(context.Background(), testEndpoint(t, srv))
	if result.Healthy {
		t.Error("expected unhealthy probe for 404 response")
	}
}

