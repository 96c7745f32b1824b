package providers

import (
	"context"
	"strings"
)

const mockWords = 12

// MockProvider answers with the opening words of the delimited text so runs
// are reproducible without network access. Token counts are word counts.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	body := req.User
	if i := strings.Index(body, `"""`); i >= 0 {
		body = body[i+3:]
		if j := strings.LastIndex(body, `"""`); j >= 0 {
			body = body[:j]
		}
	}
	words := strings.Fields(body)
	if len(words) > mockWords {
		words = words[:mockWords]
	}
	words = append([]string{"Summary:"}, words...)
	finish := "stop"
	if req.MaxTokens > 0 && len(words) > req.MaxTokens {
		words = words[:req.MaxTokens]
		finish = FinishLength
	}
	return GenerateResponse{
		Text:             strings.Join(words, " "),
		FinishReason:     finish,
		PromptTokens:     len(strings.Fields(req.System)) + len(strings.Fields(req.User)),
		CompletionTokens: len(words),
	}, info, nil
}
