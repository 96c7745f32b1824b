package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"docworker/internal/document"
	"docworker/internal/logger"
	"docworker/internal/util"
)

const docExt = ".daf"

// FileStore keeps one JSON envelope per document under <root>/<owner>/.
type FileStore struct {
	root string
	log  *logger.Logger
	mu   sync.Mutex
}

func NewFileStore(root string, log *logger.Logger) *FileStore {
	return &FileStore{root: root, log: logger.OrNop(log)}
}

func (s *FileStore) path(owner, name string) string {
	return util.SafeJoin(util.SafeJoin(s.root, owner), name+docExt)
}

func (s *FileStore) Load(_ context.Context, owner, name string) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.path(owner, name)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s/%s: %w", owner, name, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	doc, changed, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", owner, name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	if changed {
		s.log.Info("rewriting migrated document", "owner", owner, "name", name)
		if err := s.write(p, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (s *FileStore) Save(_ context.Context, owner string, doc *document.Document) error {
	if doc.Name == "" {
		return fmt.Errorf("save document: empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(s.path(owner, doc.Name), doc)
}

func (s *FileStore) write(path string, doc *document.Document) error {
	b, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, b); err != nil {
		return fmt.Errorf("save document %s: %w", doc.Name, err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context, owner string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(util.SafeJoin(s.root, owner))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != docExt {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), docExt))
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, owner, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(owner, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", owner, name, util.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
