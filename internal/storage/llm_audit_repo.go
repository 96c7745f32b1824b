package storage

import (
	"context"
	"fmt"
)

type LLMCallRecord struct {
	CallID           string
	Operation        string
	Owner            string
	Document         string
	RunID            int
	ProviderName     string
	Model            string
	Status           string
	ErrorType        string
	Attempt          int
	PromptTokens     int
	CompletionTokens int
}

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec LLMCallRecord) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, owner, document, run_id, provider_name, model, status, error_type, attempt, prompt_tokens, completion_tokens)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,0), $6, $7, $8, NULLIF($9,''), $10, $11, $12)`,
		rec.CallID, rec.Operation, rec.Owner, rec.Document, rec.RunID, rec.ProviderName, rec.Model, rec.Status, rec.ErrorType,
		rec.Attempt, rec.PromptTokens, rec.CompletionTokens)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
