package llm

import (
	"time"

	"docworker/internal/config"
	"docworker/internal/logger"
	"docworker/internal/providers"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"

	"golang.org/x/time/rate"
)

// NewFromConfig builds the client binaries use. audit may be nil.
func NewFromConfig(cfg config.Config, p providers.LLMProvider, tok tokenizer.Tokenizer, audit *storage.LLMAuditRepo, log *logger.Logger) *Client {
	opts := Options{
		Provider:      p,
		Tokenizer:     tok,
		Model:         cfg.Model,
		ContextWindow: cfg.ContextWindow,
		Temperature:   cfg.Temperature,
		Attempts:      cfg.RetryAttempts,
		BaseWait:      time.Duration(cfg.RetryBaseSeconds) * time.Second,
		Log:           log,
	}
	if cfg.LLMRequestsPerSec > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.LLMRequestsPerSec), 1)
	}
	if audit != nil {
		opts.Recorder = audit
	}
	return NewClient(opts)
}
