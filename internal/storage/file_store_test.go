package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docworker/internal/config"
	"docworker/internal/document"
	"docworker/internal/logger"
	"docworker/internal/util"

	"github.com/stretchr/testify/require"
)

func buildFromText(name string, data []byte) (*document.Document, error) {
	return document.FromChunks(name, "", []util.Chunk{{Text: string(data), TokenCount: 3}}), nil
}

func TestFileStoreSaveLoadListDelete(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), logger.Nop())

	doc := document.FromChunks("notes.txt", "h1", []util.Chunk{{Text: "hello", TokenCount: 1}})
	_, err := doc.StartRun(0, nil, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "alice", doc))

	got, err := s.Load(ctx, "alice", "notes.txt")
	require.NoError(t, err)
	require.Equal(t, "h1", got.ContentHash)
	require.Len(t, got.Runs, 1)
	require.Equal(t, document.StartMessage, got.Runs[0].StatusMessage)
	require.NotNil(t, got.State)
	require.Equal(t, []int{1}, got.State.ToRun)

	names, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"notes.txt"}, names)

	names, err = s.List(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, names)

	require.NoError(t, s.Delete(ctx, "alice", "notes.txt"))
	_, err = s.Load(ctx, "alice", "notes.txt")
	require.ErrorIs(t, err, util.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "alice", "notes.txt"), util.ErrNotFound)
}

func TestFindOrCreate(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir(), nil)

	first, created, err := FindOrCreate(ctx, s, "alice", "/tmp/plan.txt", []byte("one"), buildFromText)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "plan.txt", first.Name)
	require.Equal(t, util.SHA256Hex([]byte("one")), first.ContentHash)

	again, created, err := FindOrCreate(ctx, s, "alice", "plan.txt", []byte("one"), buildFromText)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "plan.txt", again.Name)

	other, created, err := FindOrCreate(ctx, s, "alice", "plan.txt", []byte("two"), buildFromText)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "plan(1).txt", other.Name)

	third, _, err := FindOrCreate(ctx, s, "alice", "plan.txt", []byte("three"), buildFromText)
	require.NoError(t, err)
	require.Equal(t, "plan(2).txt", third.Name)

	back, created, err := FindOrCreate(ctx, s, "alice", "plan.txt", []byte("two"), buildFromText)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "plan(1).txt", back.Name)
}

func TestFindOrCreateBuildError(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	boom := errors.New("boom")
	_, _, err := FindOrCreate(context.Background(), s, "alice", "x.pdf", []byte("x"), func(string, []byte) (*document.Document, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}

const v1Doc = `{
  "name": "old.docx",
  "content_hash": "abc",
  "segments": [{"id": 1, "name": "Block 1", "text": "alpha", "token_count": 1}],
  "prompts": [[0, "Summarize", "Summarize this"], [1, "Custom", "Do a custom thing"]],
  "runs": [{
    "run_id": 1,
    "prompt_id": 1,
    "start_time": "2023-05-01T10:00:00Z",
    "stop_time": "2023-05-01T10:01:00Z",
    "result_id": 2,
    "complete_steps": 1,
    "segments": [{"id": 1, "name": "Block 1", "text": "alpha", "token_count": 1}],
    "completions": [{"id": 2, "name": "Generated 1.1", "text": "a", "token_count": 1, "prompt_id": 1, "input_ids": [1], "token_cost": 9, "is_final_result": true}],
    "next_text_id": 3
  }]
}`

func TestLoadMigratesV1(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "alice", "old.docx.daf")
	require.NoError(t, util.WriteTextAtomic(p, v1Doc))

	s := NewFileStore(root, nil)
	doc, err := s.Load(context.Background(), "alice", "old.docx")
	require.NoError(t, err)

	require.Equal(t, 2, doc.NextRunID)
	require.Equal(t, 1, doc.Runs[0].CompletedSteps)
	require.Equal(t, "Provide a summary", doc.Prompts.Text(0))
	custom, ok := doc.Prompts.ByName("Custom")
	require.True(t, ok)
	require.True(t, custom.Consolidate)
	require.Equal(t, "Do a custom thing", custom.Text)
	require.Equal(t, 9, doc.TokenCost())
	require.Equal(t, "Generated 1.1", doc.Runs[0].Result().Name)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"format_version": 3`)
}

func TestDecodeV2FillsConsolidate(t *testing.T) {
	data := []byte(`{"format_version": 2, "document": {"name": "d", "next_run_id": 1,
	  "prompts": [{"id": 0, "name": "Explain Pirate", "text": "Explain like a pirate"}]}}`)
	doc, changed, err := DecodeDocument(data)
	require.NoError(t, err)
	require.True(t, changed)
	p, ok := doc.Prompts.ByName("Explain Pirate")
	require.True(t, ok)
	require.False(t, p.Consolidate)
}

func TestDecodeCurrentIsUnchanged(t *testing.T) {
	doc := document.New("d", "h")
	b, err := EncodeDocument(doc)
	require.NoError(t, err)
	got, changed, err := DecodeDocument(b)
	require.NoError(t, err)
	require.False(t, changed)
	require.Len(t, got.Prompts, len(doc.Prompts))
}

func TestDecodeRejectsFutureAndGarbage(t *testing.T) {
	_, _, err := DecodeDocument([]byte(`{"format_version": 9, "document": {}}`))
	require.ErrorIs(t, err, util.ErrUnknownFormatVersion)

	_, _, err = DecodeDocument([]byte(`not json`))
	require.ErrorIs(t, err, util.ErrCorruptFile)

	_, _, err = DecodeDocument([]byte(`{"prompts": [[1, "x"]]}`))
	require.ErrorIs(t, err, util.ErrCorruptFile)
}

func TestMemoryQuota(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQuota(100)
	n, err := q.AvailableTokens(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 100, n)

	require.NoError(t, q.ConsumeTokens(ctx, "alice", 130))
	n, _ = q.AvailableTokens(ctx, "alice")
	require.Zero(t, n)
	require.Equal(t, 130, q.Consumed("alice"))

	require.NoError(t, q.SetLimit(ctx, "alice", 200))
	n, _ = q.AvailableTokens(ctx, "alice")
	require.Equal(t, 70, n)
}

func TestOpenFileBackends(t *testing.T) {
	b, err := Open(context.Background(), config.Config{Store: "file", DataRoot: t.TempDir(), DefaultTokenLimit: 10}, nil)
	require.NoError(t, err)
	defer b.Close()
	require.Nil(t, b.DB)
	require.Nil(t, b.Audit)
	n, err := b.Quota.AvailableTokens(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, 10, n)

	_, err = Open(context.Background(), config.Config{Store: "s3"}, nil)
	require.Error(t, err)
}
