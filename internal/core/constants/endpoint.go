package constants

const (
	DefaultHealthCheckEndpoint = "/internal/health"

	PathV1ChatCompletions = "/v1/chat/completions"
	PathV1Embeddings      = "/v1/embeddings"
	PathV1Jobs            = "/v1/jobs"
)
