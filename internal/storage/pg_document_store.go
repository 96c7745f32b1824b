package storage

import (
	"context"
	"errors"
	"fmt"

	"docworker/internal/document"
	"docworker/internal/util"

	"github.com/jackc/pgx/v5"
)

// PGDocumentStore keeps each document envelope as a jsonb row.
type PGDocumentStore struct {
	db *DB
}

func NewPGDocumentStore(db *DB) *PGDocumentStore {
	return &PGDocumentStore{db: db}
}

func (s *PGDocumentStore) Load(ctx context.Context, owner, name string) (*document.Document, error) {
	var version int
	var body []byte
	err := s.db.Pool.QueryRow(ctx, `SELECT format_version, body FROM documents WHERE owner=$1 AND name=$2`, owner, name).Scan(&version, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load %s/%s: %w", owner, name, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	data := body
	if version > 1 {
		data = []byte(fmt.Sprintf(`{"format_version":%d,"document":%s}`, version, body))
	}
	doc, changed, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", owner, name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	if changed {
		if err := s.Save(ctx, owner, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *PGDocumentStore) Save(ctx context.Context, owner string, doc *document.Document) error {
	env, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.db.Pool.Exec(ctx, `
INSERT INTO documents (owner, name, content_hash, format_version, body)
VALUES ($1, $2, $3, $4, ($5::jsonb)->'document')
ON CONFLICT (owner, name)
DO UPDATE SET
  content_hash = EXCLUDED.content_hash,
  format_version = EXCLUDED.format_version,
  body = EXCLUDED.body,
  updated_at = NOW()`,
		owner, doc.Name, doc.ContentHash, CurrentFormatVersion, string(env))
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *PGDocumentStore) List(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx, `SELECT name FROM documents WHERE owner=$1 ORDER BY name`, owner)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan document name: %w", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PGDocumentStore) Delete(ctx context.Context, owner, name string) error {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM documents WHERE owner=$1 AND name=$2`, owner, name)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s/%s: %w", owner, name, util.ErrNotFound)
	}
	return nil
}
