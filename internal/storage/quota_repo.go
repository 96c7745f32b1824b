package storage

import (
	"context"
	"fmt"
	"sync"
)

// QuotaRepo tracks per-owner token limits. Owners without a row get the
// default limit on first access.
type QuotaRepo struct {
	db           *DB
	defaultLimit int
}

func NewQuotaRepo(db *DB, defaultLimit int) *QuotaRepo {
	return &QuotaRepo{db: db, defaultLimit: defaultLimit}
}

func (r *QuotaRepo) ensure(ctx context.Context, owner string) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO user_quotas (owner, limit_tokens)
VALUES ($1, $2)
ON CONFLICT (owner) DO UPDATE SET last_access = NOW()`, owner, r.defaultLimit)
	if err != nil {
		return fmt.Errorf("ensure quota row: %w", err)
	}
	return nil
}

// AvailableTokens is the owner's limit minus what has been consumed, never
// below zero.
func (r *QuotaRepo) AvailableTokens(ctx context.Context, owner string) (int, error) {
	if err := r.ensure(ctx, owner); err != nil {
		return 0, err
	}
	var available int64
	err := r.db.Pool.QueryRow(ctx, `SELECT GREATEST(limit_tokens - consumed_tokens, 0) FROM user_quotas WHERE owner=$1`, owner).Scan(&available)
	if err != nil {
		return 0, fmt.Errorf("available tokens: %w", err)
	}
	return int(available), nil
}

func (r *QuotaRepo) ConsumeTokens(ctx context.Context, owner string, n int) error {
	if err := r.ensure(ctx, owner); err != nil {
		return err
	}
	_, err := r.db.Pool.Exec(ctx, `UPDATE user_quotas SET consumed_tokens = consumed_tokens + $2 WHERE owner=$1`, owner, n)
	if err != nil {
		return fmt.Errorf("consume tokens: %w", err)
	}
	return nil
}

func (r *QuotaRepo) SetLimit(ctx context.Context, owner string, limit int) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO user_quotas (owner, limit_tokens)
VALUES ($1, $2)
ON CONFLICT (owner) DO UPDATE SET limit_tokens = EXCLUDED.limit_tokens`, owner, limit)
	if err != nil {
		return fmt.Errorf("set token limit: %w", err)
	}
	return nil
}

// MemoryQuota is an in-process quota used by the CLI and tests.
type MemoryQuota struct {
	mu           sync.Mutex
	defaultLimit int
	limits       map[string]int
	consumed     map[string]int
}

func NewMemoryQuota(defaultLimit int) *MemoryQuota {
	return &MemoryQuota{defaultLimit: defaultLimit, limits: map[string]int{}, consumed: map[string]int{}}
}

func (q *MemoryQuota) AvailableTokens(_ context.Context, owner string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	limit, ok := q.limits[owner]
	if !ok {
		limit = q.defaultLimit
	}
	if avail := limit - q.consumed[owner]; avail > 0 {
		return avail, nil
	}
	return 0, nil
}

func (q *MemoryQuota) ConsumeTokens(_ context.Context, owner string, n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumed[owner] += n
	return nil
}

func (q *MemoryQuota) SetLimit(_ context.Context, owner string, limit int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits[owner] = limit
	return nil
}

// Consumed reports the tokens charged to owner.
func (q *MemoryQuota) Consumed(owner string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.consumed[owner]
}
