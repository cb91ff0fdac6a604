package domain

// Message is a single chat turn in a generate request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InferenceRequest is the normalized, immutable-once-entered request handed
// to the Engine Manager. Exactly one of Messages/Prompt or EmbeddingInput is
// populated depending on the request kind.
type InferenceRequest struct {
	ModelID        string    `json:"model_id"`
	Messages       []Message `json:"messages,omitempty"`
	Prompt         string    `json:"prompt,omitempty"`
	EmbeddingInput []string  `json:"embedding_input,omitempty"`
	Stop           []string  `json:"stop,omitempty"`
	TraceID        string    `json:"trace_id"`
	MaxTokens      *int      `json:"max_tokens,omitempty"`
	Temperature    *float64  `json:"temperature,omitempty"`
	TopP           *float64  `json:"top_p,omitempty"`
	Stream         bool      `json:"stream"`
}

// Kind reports which capability this request exercises, used by the Manager
// to filter candidate engines.
func (r *InferenceRequest) Kind() Capability {
	switch {
	case len(r.EmbeddingInput) > 0:
		return CapabilityEmbed
	case r.Stream:
		return CapabilityStream
	default:
		return CapabilityGenerate
	}
}

// TokenCounts mirrors the teacher's ProviderMetrics token fields, trimmed to
// the prompt/completion pair the spec's InferenceResponse names.
type TokenCounts struct {
	Prompt     int32 `json:"prompt"`
	Completion int32 `json:"completion"`
}

// InferenceResponse is the normalized result returned to the caller, or
// folded into a Job's result on the async path.
type InferenceResponse struct {
	ModelID         string         `json:"model_id"`
	EngineUsed      EngineIdentity `json:"engine_used"`
	FinishReason    string         `json:"finish_reason"`
	OutputText      string         `json:"output_text,omitempty"`
	EmbeddingVector []float64      `json:"embedding_vector,omitempty"`
	TokenCounts     TokenCounts    `json:"token_counts"`
	LatencyMs       int64          `json:"latency_ms"`
}

// StreamChunk is one element of a stream's lazy pull sequence. The final
// chunk in a stream carries Done=true and the annotated usage fields so the
// Manager can attach EngineUsed/token counts without buffering the body.
type StreamChunk struct {
	Text         string         `json:"text,omitempty"`
	EngineUsed   EngineIdentity `json:"engine_used,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	TokenCounts  TokenCounts    `json:"token_counts,omitempty"`
	Done         bool           `json:"done"`
}
