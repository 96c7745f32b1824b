package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docworker/internal/config"
	"docworker/internal/providers"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"
	"docworker/internal/util"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	args := m.Called(req)
	return args.Get(0).(providers.GenerateResponse), providers.ProviderInfo{Name: "stub", Model: "stub-1"}, args.Error(1)
}

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

type auditLog struct {
	records []storage.LLMCallRecord
}

func (a *auditLog) Insert(_ context.Context, rec storage.LLMCallRecord) error {
	a.records = append(a.records, rec)
	return nil
}

func newTestClient(p providers.LLMProvider, s *sleepLog) *Client {
	return NewClient(Options{
		Provider:      p,
		Tokenizer:     tokenizer.NewWords(),
		ContextWindow: 4097,
		BaseWait:      time.Second,
		Sleep:         s.sleep,
	})
}

func TestCompleteRetriesThenSucceeds(t *testing.T) {
	p := &mockProvider{}
	p.On("Generate", mock.Anything).Return(providers.GenerateResponse{}, errors.New("service unavailable")).Times(4)
	p.On("Generate", mock.Anything).Return(providers.GenerateResponse{Text: "ok", PromptTokens: 30, CompletionTokens: 1}, nil).Once()

	s := &sleepLog{}
	var retried []int
	var noticed int
	c := newTestClient(p, s)
	c.opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = append(retried, attempt)
		require.ErrorIs(t, err, util.ErrTransient)
	}
	ctx := WithRetryNotice(context.Background(), func(int, error, time.Duration) { noticed++ })

	resp := c.Complete(ctx, "Provide a summary", "some text", 100)
	require.NoError(t, resp.Err)
	require.Equal(t, "ok", resp.Text)
	require.Equal(t, 30, resp.PromptTokens)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, s.waits)
	require.Equal(t, []int{1, 2, 3, 4}, retried)
	require.Equal(t, 4, noticed)
	p.AssertNumberOfCalls(t, "Generate", 5)
}

func TestCompleteGivesUpAfterFiveAttempts(t *testing.T) {
	p := &mockProvider{}
	p.On("Generate", mock.Anything).Return(providers.GenerateResponse{}, errors.New("bad request"))

	s := &sleepLog{}
	audit := &auditLog{}
	c := newTestClient(p, s)
	c.opts.Recorder = audit

	ctx := WithCallInfo(context.Background(), CallInfo{Owner: "alice", Document: "plan.docx", RunID: 3})
	resp := c.Complete(ctx, "Provide a summary", "some text", 100)
	require.Error(t, resp.Err)
	require.ErrorIs(t, resp.Err, util.ErrPermanent)
	require.Empty(t, resp.Text)
	require.Len(t, s.waits, 4)
	p.AssertNumberOfCalls(t, "Generate", 5)

	require.Len(t, audit.records, 5)
	for i, rec := range audit.records {
		require.Equal(t, i+1, rec.Attempt)
		require.Equal(t, "failed", rec.Status)
		require.Equal(t, "permanent", rec.ErrorType)
		require.Equal(t, "alice", rec.Owner)
		require.Equal(t, 3, rec.RunID)
		require.NotEmpty(t, rec.CallID)
	}
}

func TestCompleteFramesAndClampsRequest(t *testing.T) {
	tok := tokenizer.NewWords()
	system := Instruction("Provide a summary")
	user := Frame("alpha beta")
	want := 4097 - tok.Count(system) - tok.Count(user) - safetyMargin

	p := &mockProvider{}
	p.On("Generate", mock.MatchedBy(func(req providers.GenerateRequest) bool {
		return req.System == system && req.User == user && req.MaxTokens == want
	})).Return(providers.GenerateResponse{Text: "fine"}, nil).Twice()

	c := newTestClient(p, &sleepLog{})
	resp := c.Complete(context.Background(), "Provide a summary", "alpha beta", NoLimit)
	require.NoError(t, resp.Err)
	require.Equal(t, tok.Count(system)+tok.Count(user), resp.PromptTokens)
	require.Equal(t, 1, resp.CompletionTokens)

	resp = c.Complete(context.Background(), "Provide a summary", "alpha beta", 100000)
	require.NoError(t, resp.Err)
	p.AssertExpectations(t)
}

func TestCompleteTrimsTruncatedOutput(t *testing.T) {
	p := &mockProvider{}
	p.On("Generate", mock.Anything).Return(providers.GenerateResponse{Text: "line one\nline tw", FinishReason: providers.FinishLength}, nil)

	resp := newTestClient(p, &sleepLog{}).Complete(context.Background(), "p", "t", 10)
	require.NoError(t, resp.Err)
	require.True(t, resp.Truncated)
	require.Equal(t, "line one\n", resp.Text)
}

func TestCompleteContextTooLong(t *testing.T) {
	p := &mockProvider{}
	c := newTestClient(p, &sleepLog{})
	c.opts.ContextWindow = 10
	resp := c.Complete(context.Background(), "Provide a summary", "alpha beta", NoLimit)
	require.ErrorIs(t, resp.Err, util.ErrContextTooLong)
	p.AssertNotCalled(t, "Generate", mock.Anything)
}

func TestCompleteStopsWhenCancelled(t *testing.T) {
	p := &mockProvider{}
	p.On("Generate", mock.Anything).Return(providers.GenerateResponse{}, errors.New("timeout"))

	c := newTestClient(p, &sleepLog{})
	c.opts.Sleep = func(context.Context, time.Duration) error { return context.Canceled }
	resp := c.Complete(context.Background(), "p", "t", 10)
	require.True(t, IsCancelled(resp))
	p.AssertNumberOfCalls(t, "Generate", 1)
}

func TestOutputLimit(t *testing.T) {
	require.Equal(t, 20, OutputLimit(100, 10, 20, NoLimit))
	require.Equal(t, 20, OutputLimit(100, 10, 20, 50))
	require.Equal(t, 5, OutputLimit(100, 10, 20, 5))
}

func TestHelpers(t *testing.T) {
	require.Equal(t, 5*time.Second, Backoff(5*time.Second, 1))
	require.Equal(t, 40*time.Second, Backoff(5*time.Second, 4))
	require.Equal(t, 30*time.Second, attemptTimeout(1))
	require.Equal(t, "no newline", TrimToLastLine("no newline"))
	require.Equal(t, `"""x"""`, Frame("x"))
}

func TestFake(t *testing.T) {
	f := &Fake{}
	r := f.Complete(context.Background(), "Provide a summary", "a b c", 10)
	require.Equal(t, "Result 1", r.Text)
	require.Equal(t, 6, r.PromptTokens)
	require.Equal(t, 2, r.CompletionTokens)

	f.Reply = func(int, string, string) (string, error) { return "", errors.New("down") }
	r = f.Complete(context.Background(), "p", "t", 10)
	require.EqualError(t, r.Err, "down")
	require.Len(t, f.Calls(), 2)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Config{ContextWindow: 2000, RetryAttempts: 3, RetryBaseSeconds: 2, LLMRequestsPerSec: 4, Temperature: 0.1}
	c := NewFromConfig(cfg, providers.NewMockProvider(), tokenizer.NewWords(), nil, nil)
	require.Equal(t, 3, c.opts.Attempts)
	require.Equal(t, 2*time.Second, c.opts.BaseWait)
	require.NotNil(t, c.opts.Limiter)
	require.Nil(t, c.opts.Recorder)

	resp := c.Complete(context.Background(), "Provide a summary", "alpha beta", NoLimit)
	require.NoError(t, resp.Err)
	require.Equal(t, "Summary: alpha beta", resp.Text)
}
