package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type Call struct {
	Prompt    string
	Text      string
	MaxTokens int
}

// Fake is a deterministic Completer. Without Reply it answers call n with
// "Result <n>". Token counts are word counts.
type Fake struct {
	Reply func(n int, prompt, text string) (string, error)

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) Complete(_ context.Context, prompt, text string, maxTokens int) Response {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt, Text: text, MaxTokens: maxTokens})
	n := len(f.calls)
	f.mu.Unlock()

	reply := fmt.Sprintf("Result %d", n)
	if f.Reply != nil {
		var err error
		if reply, err = f.Reply(n, prompt, text); err != nil {
			return Response{Err: err}
		}
	}
	return Response{
		Text:             reply,
		PromptTokens:     len(strings.Fields(prompt)) + len(strings.Fields(text)),
		CompletionTokens: len(strings.Fields(reply)),
	}
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
