// Package engine adapts the normalized InferenceRequest/Response into
// each engine family's wire format, grounded on the teacher's
// registry/profile response DTOs for model listing and its proxy service
// for request dispatch and timing.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// httpDoer is the narrow slice of *http.Client the adapters need, letting
// tests substitute a fake transport without pulling in the pool package.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OllamaAdapter speaks Ollama's native /api/chat and /api/embed
// protocol, distinct from the OpenAI-compatible surface every other
// engine family exposes.
type OllamaAdapter struct {
	client httpDoer
}

func NewOllamaAdapter(client httpDoer) *OllamaAdapter {
	return &OllamaAdapter{client: client}
}

func (a *OllamaAdapter) Identity() domain.EngineIdentity { return domain.EngineOllama }

// statusErr classifies a non-2xx engine response. A 4xx is the caller's
// fault — bad request, unknown model, unsupported parameter — and comes
// back as a ClientError so the manager treats it as terminal rather than
// retryable. A 5xx is the engine's fault and stays a plain error, which the
// manager records against the breaker and fails over on.
func statusErr(identity domain.EngineIdentity, status int) error {
	if status >= 400 && status < 500 {
		return domain.NewClientError(string(identity), fmt.Sprintf("returned status %d", status))
	}
	return fmt.Errorf("%s returned status %d", identity, status)
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []domain.Message       `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model        string        `json:"model"`
	Message      domain.Message `json:"message"`
	Done         bool          `json:"done"`
	DoneReason   string        `json:"done_reason"`
	PromptCount  int32         `json:"prompt_eval_count"`
	EvalCount    int32         `json:"eval_count"`
}

func (a *OllamaAdapter) Generate(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	start := time.Now()

	body := ollamaChatRequest{
		Model:    req.ModelID,
		Messages: req.Messages,
		Stream:   false,
		Options:  ollamaOptions(req),
	}

	raw, err := jsonAPI.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URLString+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusErr(domain.EngineOllama, resp.StatusCode)
	}

	var parsed ollamaChatResponse
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	return &domain.InferenceResponse{
		ModelID:      req.ModelID,
		EngineUsed:   domain.EngineOllama,
		FinishReason: parsed.DoneReason,
		OutputText:   parsed.Message.Content,
		TokenCounts: domain.TokenCounts{
			Prompt:     parsed.PromptCount,
			Completion: parsed.EvalCount,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (a *OllamaAdapter) Stream(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error) {
	body := ollamaChatRequest{
		Model:    req.ModelID,
		Messages: req.Messages,
		Stream:   true,
		Options:  ollamaOptions(req),
	}

	raw, err := jsonAPI.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URLString+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama dispatch: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, statusErr(domain.EngineOllama, resp.StatusCode)
	}

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		decoder := jsonAPI.NewDecoder(resp.Body)
		for decoder.More() {
			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				return
			}

			select {
			case out <- domain.StreamChunk{
				Text:         chunk.Message.Content,
				EngineUsed:   domain.EngineOllama,
				FinishReason: chunk.DoneReason,
				TokenCounts: domain.TokenCounts{
					Prompt:     chunk.PromptCount,
					Completion: chunk.EvalCount,
				},
				Done: chunk.Done,
			}:
			case <-ctx.Done():
				return
			}

			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (a *OllamaAdapter) Embed(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	start := time.Now()

	raw, err := jsonAPI.Marshal(ollamaEmbedRequest{Model: req.ModelID, Input: req.EmbeddingInput})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URLString+"/api/embed", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embed dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusErr(domain.EngineOllama, resp.StatusCode)
	}

	var parsed ollamaEmbedResponse
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode ollama embed response: %w", err)
	}

	var vector []float64
	if len(parsed.Embeddings) > 0 {
		vector = parsed.Embeddings[0]
	}

	return &domain.InferenceResponse{
		ModelID:         req.ModelID,
		EngineUsed:      domain.EngineOllama,
		EmbeddingVector: vector,
		LatencyMs:       time.Since(start).Milliseconds(),
	}, nil
}

func (a *OllamaAdapter) Probe(ctx context.Context, endpoint *domain.EngineEndpoint) domain.HealthCheckResult {
	start := time.Now()

	probePath := endpoint.ProbePath
	if probePath == "" {
		probePath = "/api/tags"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.GetHealthCheckURLString()+probePath, nil)
	if err != nil {
		return domain.HealthCheckResult{ErrorType: domain.ErrorTypeHTTPError, Error: err}
	}

	resp, err := a.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		errType := domain.ErrorTypeNetwork
		if ctx.Err() != nil {
			errType = domain.ErrorTypeTimeout
		}
		return domain.HealthCheckResult{ErrorType: errType, Error: err, Latency: latency}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return domain.HealthCheckResult{
			ErrorType:  domain.ErrorTypeHTTPError,
			Error:      statusErr(domain.EngineOllama, resp.StatusCode),
			StatusCode: resp.StatusCode,
			Latency:    latency,
		}
	}

	return domain.HealthCheckResult{Healthy: true, StatusCode: resp.StatusCode, Latency: latency}
}

func ollamaOptions(req *domain.InferenceRequest) map[string]interface{} {
	opts := make(map[string]interface{})
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		opts["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		opts["num_predict"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		opts["stop"] = req.Stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
