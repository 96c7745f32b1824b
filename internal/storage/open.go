package storage

import (
	"context"
	"fmt"
	"strings"

	"docworker/internal/config"
	"docworker/internal/logger"
)

// TokenQuota is implemented by QuotaRepo and MemoryQuota.
type TokenQuota interface {
	AvailableTokens(ctx context.Context, owner string) (int, error)
	ConsumeTokens(ctx context.Context, owner string, n int) error
	SetLimit(ctx context.Context, owner string, limit int) error
}

// Backends is the persistence a binary runs against. DB and Audit are nil
// with the file store.
type Backends struct {
	DB        *DB
	Documents DocumentStore
	Quota     TokenQuota
	Audit     *LLMAuditRepo
}

// Open selects the document store named by cfg.Store. The postgres store
// also backs quotas and the LLM call audit; the file store keeps quotas in
// memory.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*Backends, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", "file":
		return &Backends{
			Documents: NewFileStore(cfg.DataRoot, log),
			Quota:     NewMemoryQuota(cfg.DefaultTokenLimit),
		}, nil
	case "postgres":
		db, err := NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return &Backends{
			DB:        db,
			Documents: NewPGDocumentStore(db),
			Quota:     NewQuotaRepo(db, cfg.DefaultTokenLimit),
			Audit:     NewLLMAuditRepo(db),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store: %s", cfg.Store)
	}
}

func (b *Backends) Close() {
	if b != nil {
		b.DB.Close()
	}
}
