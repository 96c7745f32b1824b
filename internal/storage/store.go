package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"docworker/internal/document"
	"docworker/internal/util"
)

// DocumentStore persists documents per owner.
type DocumentStore interface {
	Load(ctx context.Context, owner, name string) (*document.Document, error)
	Save(ctx context.Context, owner string, doc *document.Document) error
	List(ctx context.Context, owner string) ([]string, error)
	Delete(ctx context.Context, owner, name string) error
}

// BuildFunc produces a new document from uploaded bytes.
type BuildFunc func(name string, data []byte) (*document.Document, error)

// maxNameAttempts bounds the name(1), name(2)... search.
const maxNameAttempts = 1000

// FindOrCreate returns the stored document for filename when it holds the
// same content. A name taken by other content is retried as name(1),
// name(2) and so on. created reports whether build ran.
func FindOrCreate(ctx context.Context, s DocumentStore, owner, filename string, data []byte, build BuildFunc) (doc *document.Document, created bool, err error) {
	hash := util.SHA256Hex(data)
	base := filepath.Base(filename)
	for i := 0; i < maxNameAttempts; i++ {
		name := candidateName(base, i)
		existing, err := s.Load(ctx, owner, name)
		if errors.Is(err, util.ErrNotFound) {
			doc, err := build(name, data)
			if err != nil {
				return nil, false, err
			}
			doc.Name = name
			doc.ContentHash = hash
			if err := s.Save(ctx, owner, doc); err != nil {
				return nil, false, err
			}
			return doc, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		if existing.ContentHash == hash {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("find name for %s: too many versions", base)
}

func candidateName(base string, n int) string {
	if n == 0 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s(%d)%s", strings.TrimSuffix(base, ext), n, ext)
}
