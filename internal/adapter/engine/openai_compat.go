package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

// OpenAICompatAdapter speaks the OpenAI-compatible /v1/chat/completions,
// /v1/embeddings and /v1/models surface that vLLM, TGI, SGLang, TensorRT-LLM,
// DeepSpeed-MII and LMDeploy all converge on, grounded on the teacher's
// VLLMResponse/SGLangResponse model-listing DTOs. One instance is
// constructed per EngineIdentity so Probe/dispatch can report which
// family actually served the request.
type OpenAICompatAdapter struct {
	identity domain.EngineIdentity
	client   httpDoer
}

func NewOpenAICompatAdapter(identity domain.EngineIdentity, client httpDoer) *OpenAICompatAdapter {
	return &OpenAICompatAdapter{identity: identity, client: client}
}

func (a *OpenAICompatAdapter) Identity() domain.EngineIdentity { return a.identity }

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []domain.Message `json:"messages"`
	Stream      bool            `json:"stream"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

type chatCompletionChoice struct {
	FinishReason string        `json:"finish_reason"`
	Message      domain.Message `json:"message"`
	Delta        domain.Message `json:"delta"`
	Index        int           `json:"index"`
}

type chatCompletionResponse struct {
	Model   string                  `json:"model"`
	Choices []chatCompletionChoice  `json:"choices"`
	Usage   struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *OpenAICompatAdapter) buildRequest(req *domain.InferenceRequest, stream bool) chatCompletionRequest {
	return chatCompletionRequest{
		Model:       req.ModelID,
		Messages:    req.Messages,
		Stream:      stream,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
}

func (a *OpenAICompatAdapter) Generate(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	start := time.Now()

	raw, err := jsonAPI.Marshal(a.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", a.identity, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URLString+"/v1/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s dispatch: %w", a.identity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusErr(a.identity, resp.StatusCode)
	}

	var parsed chatCompletionResponse
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", a.identity, err)
	}

	out := &domain.InferenceResponse{
		ModelID:    req.ModelID,
		EngineUsed: a.identity,
		TokenCounts: domain.TokenCounts{
			Prompt:     parsed.Usage.PromptTokens,
			Completion: parsed.Usage.CompletionTokens,
		},
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if len(parsed.Choices) > 0 {
		out.OutputText = parsed.Choices[0].Message.Content
		out.FinishReason = parsed.Choices[0].FinishReason
	}
	return out, nil
}

func (a *OpenAICompatAdapter) Stream(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error) {
	raw, err := jsonAPI.Marshal(a.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", a.identity, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URLString+"/v1/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s dispatch: %w", a.identity, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, statusErr(a.identity, resp.StatusCode)
	}

	out := make(chan domain.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				select {
				case out <- domain.StreamChunk{EngineUsed: a.identity, Done: true}:
				case <-ctx.Done():
				}
				return
			}

			var parsed chatCompletionResponse
			if err := jsonAPI.UnmarshalFromString(payload, &parsed); err != nil {
				continue
			}

			chunk := domain.StreamChunk{EngineUsed: a.identity}
			if len(parsed.Choices) > 0 {
				chunk.Text = parsed.Choices[0].Delta.Content
				chunk.FinishReason = parsed.Choices[0].FinishReason
				chunk.Done = parsed.Choices[0].FinishReason != ""
			}

			select {
			case out <- chunk:
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

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (a *OpenAICompatAdapter) Embed(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	start := time.Now()

	raw, err := jsonAPI.Marshal(embeddingRequest{Model: req.ModelID, Input: req.EmbeddingInput})
	if err != nil {
		return nil, fmt.Errorf("marshal %s embed request: %w", a.identity, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URLString+"/v1/embeddings", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s embed dispatch: %w", a.identity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, statusErr(a.identity, resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s embed response: %w", a.identity, err)
	}

	var vector []float64
	if len(parsed.Data) > 0 {
		vector = parsed.Data[0].Embedding
	}

	return &domain.InferenceResponse{
		ModelID:         req.ModelID,
		EngineUsed:      a.identity,
		EmbeddingVector: vector,
		LatencyMs:       time.Since(start).Milliseconds(),
	}, nil
}

func (a *OpenAICompatAdapter) Probe(ctx context.Context, endpoint *domain.EngineEndpoint) domain.HealthCheckResult {
	start := time.Now()

	probePath := endpoint.ProbePath
	if probePath == "" {
		probePath = "/v1/models"
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
			Error:      statusErr(a.identity, resp.StatusCode),
			StatusCode: resp.StatusCode,
			Latency:    latency,
		}
	}

	return domain.HealthCheckResult{Healthy: true, StatusCode: resp.StatusCode, Latency: latency}
}
