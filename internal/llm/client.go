// Package llm frames prompts for a chat provider and applies the context
// budget, retry and truncation rules every completion goes through.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"docworker/internal/logger"
	"docworker/internal/providers"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"
	"docworker/internal/util"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// NoLimit asks for the largest completion the context window allows.
	NoLimit = -1

	instructionPrefix = "You will be provided with text delimited by triple quotes. Using all of the text, "
	safetyMargin      = 50

	defaultAttempts = 5
	defaultBaseWait = 5 * time.Second
	defaultWindow   = 4097
)

// Response is the outcome of one Complete call. Err is set, and Text empty,
// when every attempt failed.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Truncated        bool
	Err              error
}

// Completer produces a completion of text under prompt. maxTokens of NoLimit
// uses whatever room the context window leaves.
type Completer interface {
	Complete(ctx context.Context, prompt, text string, maxTokens int) Response
}

// Recorder receives one audit record per provider attempt.
type Recorder interface {
	Insert(ctx context.Context, rec storage.LLMCallRecord) error
}

// RetryFunc is told about every failed attempt that will be retried.
type RetryFunc func(attempt int, err error, wait time.Duration)

type Options struct {
	Provider      providers.LLMProvider
	Tokenizer     tokenizer.Tokenizer
	Model         string
	ContextWindow int
	Temperature   float64
	Attempts      int
	BaseWait      time.Duration
	Limiter       *rate.Limiter
	Recorder      Recorder
	OnRetry       RetryFunc
	Log           *logger.Logger
	// Sleep replaces the backoff wait; nil sleeps on a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Client struct {
	opts Options
	log  *logger.Logger
}

func NewClient(opts Options) *Client {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.BaseWait <= 0 {
		opts.BaseWait = defaultBaseWait
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = defaultWindow
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Client{opts: opts, log: logger.OrNop(opts.Log)}
}

// Instruction is the system text sent for prompt.
func Instruction(prompt string) string {
	return instructionPrefix + prompt
}

// Frame wraps text in the triple-quote delimiters the instruction refers to.
func Frame(text string) string {
	return `"""` + text + `"""`
}

// OutputLimit clamps maxTokens to the room left in window after the prompt
// and text, keeping a safety margin. NoLimit takes all of that room.
func OutputLimit(window, promptTokens, textTokens, maxTokens int) int {
	limit := window - promptTokens - textTokens - safetyMargin
	if maxTokens < 0 || maxTokens > limit {
		return limit
	}
	return maxTokens
}

// Backoff is the wait after failed attempt n (1-based).
func Backoff(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<(attempt-1))
}

// attemptTimeout grows with each retry.
func attemptTimeout(attempt int) time.Duration {
	return time.Duration(20+10*attempt) * time.Second
}

// TrimToLastLine drops a trailing partial line, keeping the last newline.
func TrimToLastLine(text string) string {
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		return text[:i+1]
	}
	return text
}

func (c *Client) Complete(ctx context.Context, prompt, text string, maxTokens int) Response {
	system := Instruction(prompt)
	user := Frame(text)
	promptTokens := c.opts.Tokenizer.Count(system)
	textTokens := c.opts.Tokenizer.Count(user)
	limit := OutputLimit(c.opts.ContextWindow, promptTokens, textTokens, maxTokens)
	if limit <= 0 {
		return Response{PromptTokens: promptTokens + textTokens, Err: util.ErrContextTooLong}
	}
	req := providers.GenerateRequest{
		Operation:   "complete",
		System:      system,
		User:        user,
		Model:       c.opts.Model,
		MaxTokens:   limit,
		Temperature: c.opts.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Attempts; attempt++ {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return Response{Err: err}
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, attemptTimeout(attempt))
		resp, info, err := c.opts.Provider.Generate(callCtx, req)
		cancel()
		c.record(ctx, info, attempt, resp, err)

		if err == nil {
			out := Response{
				Text:             resp.Text,
				PromptTokens:     resp.PromptTokens,
				CompletionTokens: resp.CompletionTokens,
				Truncated:        resp.FinishReason == providers.FinishLength,
			}
			if out.PromptTokens == 0 {
				out.PromptTokens = promptTokens + textTokens
			}
			if out.CompletionTokens == 0 {
				out.CompletionTokens = c.opts.Tokenizer.Count(resp.Text)
			}
			if out.Truncated {
				out.Text = TrimToLastLine(out.Text)
			}
			return out
		}

		lastErr = providers.Classified(err)
		if ctx.Err() != nil {
			return Response{Err: ctx.Err()}
		}
		if attempt == c.opts.Attempts {
			break
		}
		wait := Backoff(c.opts.BaseWait, attempt)
		c.log.Warn("llm attempt failed", "attempt", attempt, "wait", wait.String(), "error", err.Error())
		if c.opts.OnRetry != nil {
			c.opts.OnRetry(attempt, lastErr, wait)
		}
		if notice := retryNoticeFrom(ctx); notice != nil {
			notice(attempt, lastErr, wait)
		}
		if err := c.opts.Sleep(ctx, wait); err != nil {
			return Response{Err: err}
		}
	}
	c.log.Error("llm call failed", "attempts", c.opts.Attempts, "error", lastErr.Error())
	return Response{Err: lastErr}
}

func (c *Client) record(ctx context.Context, info providers.ProviderInfo, attempt int, resp providers.GenerateResponse, err error) {
	if c.opts.Recorder == nil {
		return
	}
	call := CallInfoFrom(ctx)
	rec := storage.LLMCallRecord{
		CallID:           uuid.NewString(),
		Operation:        "complete",
		Owner:            call.Owner,
		Document:         call.Document,
		RunID:            call.RunID,
		ProviderName:     info.Name,
		Model:            info.Model,
		Status:           "ok",
		Attempt:          attempt,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}
	if err != nil {
		rec.Status = "failed"
		rec.ErrorType = string(providers.ClassifyError(err))
	}
	if rerr := c.opts.Recorder.Insert(ctx, rec); rerr != nil {
		c.log.Warn("record llm call", "error", rerr.Error())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CallInfo tags audit records with the run a call belongs to.
type CallInfo struct {
	Owner    string
	Document string
	RunID    int
}

type callInfoKey struct{}

func WithCallInfo(ctx context.Context, info CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey{}, info)
}

func CallInfoFrom(ctx context.Context) CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(CallInfo)
	return info
}

type retryNoticeKey struct{}

// WithRetryNotice attaches a per-call RetryFunc, used by callers that report
// retries on their own status channel.
func WithRetryNotice(ctx context.Context, fn RetryFunc) context.Context {
	return context.WithValue(ctx, retryNoticeKey{}, fn)
}

func retryNoticeFrom(ctx context.Context) RetryFunc {
	fn, _ := ctx.Value(retryNoticeKey{}).(RetryFunc)
	return fn
}

// IsCancelled reports whether a response failed because ctx ended.
func IsCancelled(r Response) bool {
	return errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded)
}
