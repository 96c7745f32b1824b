package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// GenerateRequest is one chat completion. MaxTokens <= 0 leaves the
// completion length to the provider.
type GenerateRequest struct {
	Operation   string  `json:"operation"`
	System      string  `json:"system"`
	User        string  `json:"user"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// FinishLength marks a completion cut off by the token limit.
const FinishLength = "length"

type GenerateResponse struct {
	Text             string `json:"text"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}
