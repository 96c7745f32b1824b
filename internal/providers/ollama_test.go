package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveOllamaModel(t *testing.T) {
	t.Setenv("DOCWORKER_OLLAMA_MODEL", "")
	require.Equal(t, "llama3.1", resolveOllamaModel(""))
	require.Equal(t, "mistral-7b", resolveOllamaModel("mistral-7b"))

	t.Setenv("DOCWORKER_OLLAMA_MODEL_FAST", "phi3")
	require.Equal(t, "phi3", resolveOllamaModel("fast"))
}

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"content":"short answer"},"done_reason":"length","prompt_eval_count":40,"eval_count":7}`))
	}))
	defer srv.Close()
	t.Setenv("DOCWORKER_OLLAMA_BASE_URL", srv.URL)

	p := NewOllamaProvider("")
	resp, info, err := p.Generate(context.Background(), GenerateRequest{System: "sys", User: "hello", MaxTokens: 7})
	require.NoError(t, err)
	require.Equal(t, "ollama", info.Name)
	require.Equal(t, "short answer", resp.Text)
	require.Equal(t, FinishLength, resp.FinishReason)
	require.Equal(t, 40, resp.PromptTokens)
	require.Equal(t, 7, resp.CompletionTokens)

	options := got["options"].(map[string]any)
	require.EqualValues(t, 7, options["num_predict"])
	require.Len(t, got["messages"], 2)
}
