package activities

import (
	"context"
	"testing"

	"docworker/internal/docgen"
	"docworker/internal/document"
	"docworker/internal/llm"
	"docworker/internal/logger"
	"docworker/internal/storage"
	"docworker/internal/tokenizer"
	"docworker/internal/util"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

type fixture struct {
	store  *storage.FileStore
	quota  *storage.MemoryQuota
	driver *docgen.Driver
	fake   *llm.Fake
	acts   *Activities
	ref    RunRef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewFileStore(t.TempDir(), logger.Nop()),
		quota: storage.NewMemoryQuota(1000),
		fake:  &llm.Fake{},
	}
	f.driver = docgen.NewDriver(f.fake, tokenizer.NewWords(), 40, logger.Nop())
	f.acts = New(f.store, f.quota, f.driver, logger.Nop())

	doc := document.FromChunks("notes.txt", "h", []util.Chunk{
		{Text: "one", TokenCount: 20},
		{Text: "two", TokenCount: 20},
		{Text: "three", TokenCount: 20},
	})
	run, err := f.driver.StartRun(doc, "Provide a summary", nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(context.Background(), "alice", doc))
	f.ref = RunRef{Owner: "alice", Document: "notes.txt", RunID: run.RunID}
	return f
}

func TestRunStepActivityDrivesRun(t *testing.T) {
	f := newFixture(t)
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(f.acts)

	var out RunStepOutput
	for i := 0; i < 20 && !out.Done; i++ {
		val, err := env.ExecuteActivity(f.acts.RunStepActivity, f.ref)
		require.NoError(t, err)
		require.NoError(t, val.Get(&out))
	}
	require.True(t, out.Done)
	require.NotZero(t, out.ResultID)
	require.Equal(t, 3, out.CompletedSteps)
	require.Len(t, f.fake.Calls(), 3)

	doc, err := f.store.Load(context.Background(), "alice", "notes.txt")
	require.NoError(t, err)
	run := doc.Run(f.ref.RunID)
	require.True(t, run.Stopped())
	require.Equal(t, out.ResultID, run.ResultID)

	val, err := env.ExecuteActivity(f.acts.RunTokenCostActivity, f.ref)
	require.NoError(t, err)
	var cost RunTokenCostOutput
	require.NoError(t, val.Get(&cost))
	require.Equal(t, run.TokenCost(), cost.Tokens)

	_, err = env.ExecuteActivity(f.acts.ConsumeTokensActivity, ConsumeTokensInput{Owner: "alice", Tokens: cost.Tokens})
	require.NoError(t, err)
	require.Equal(t, cost.Tokens, f.quota.Consumed("alice"))
}

func TestCancelRunActivity(t *testing.T) {
	f := newFixture(t)
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(f.acts)

	_, err := env.ExecuteActivity(f.acts.CancelRunActivity, CancelRunInput{RunRef: f.ref, Message: "Cancelled by user"})
	require.NoError(t, err)

	doc, err := f.store.Load(context.Background(), "alice", "notes.txt")
	require.NoError(t, err)
	require.Equal(t, "Cancelled by user", doc.StatusMessage(f.ref.RunID))
	require.Empty(t, doc.State.ToRun)

	val, err := env.ExecuteActivity(f.acts.RunStepActivity, f.ref)
	require.NoError(t, err)
	var out RunStepOutput
	require.NoError(t, val.Get(&out))
	require.True(t, out.Done)
	require.Empty(t, f.fake.Calls())
}

func TestRunStepActivitySupersededRun(t *testing.T) {
	f := newFixture(t)
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(f.acts)

	stale := f.ref
	stale.RunID = 99
	val, err := env.ExecuteActivity(f.acts.RunStepActivity, stale)
	require.NoError(t, err)
	var out RunStepOutput
	require.NoError(t, val.Get(&out))
	require.True(t, out.Done)
}
