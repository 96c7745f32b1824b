package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"docworker/internal/activities"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newDocGenEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocGenWorkflow)
	registerActivityName(env, "RunStepActivity", func(context.Context, activities.RunRef) (activities.RunStepOutput, error) {
		return activities.RunStepOutput{}, nil
	})
	registerActivityName(env, "CancelRunActivity", func(context.Context, activities.CancelRunInput) error { return nil })
	registerActivityName(env, "RunTokenCostActivity", func(context.Context, activities.RunRef) (activities.RunTokenCostOutput, error) {
		return activities.RunTokenCostOutput{}, nil
	})
	registerActivityName(env, "ConsumeTokensActivity", func(context.Context, activities.ConsumeTokensInput) error { return nil })
	return env
}

func TestDocGenWorkflowRunsToCompletion(t *testing.T) {
	env := newDocGenEnv(t)
	ref := activities.RunRef{Owner: "alice", Document: "notes", RunID: 1}

	env.OnActivity("RunStepActivity", mock.Anything, ref).Return(activities.RunStepOutput{Status: "Summarize on Block 1", CompletedSteps: 1, Queued: 1}, nil).Once()
	env.OnActivity("RunStepActivity", mock.Anything, ref).Return(activities.RunStepOutput{Status: "Summarize on Generated 1", CompletedSteps: 2, Queued: 1}, nil).Once()
	env.OnActivity("RunStepActivity", mock.Anything, ref).Return(activities.RunStepOutput{Done: true, CompletedSteps: 2, ResultID: 4}, nil).Once()
	env.OnActivity("RunTokenCostActivity", mock.Anything, ref).Return(activities.RunTokenCostOutput{Tokens: 120}, nil).Once()
	env.OnActivity("ConsumeTokensActivity", mock.Anything, activities.ConsumeTokensInput{Owner: "alice", Tokens: 120}).Return(nil).Once()

	env.ExecuteWorkflow(DocGenWorkflow, DocGenInput{Owner: "alice", Document: "notes", RunID: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DocGenResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, DocGenResult{RunID: 1, ResultID: 4, Tokens: 120}, out)

	val, err := env.QueryWorkflow(QueryGetRunProgress)
	require.NoError(t, err)
	var progress DocGenProgress
	require.NoError(t, val.Get(&progress))
	require.True(t, progress.Done)
	require.Equal(t, 3, progress.Steps)
	require.Equal(t, 2, progress.CompletedSteps)
	env.AssertExpectations(t)
}

func TestDocGenWorkflowSkipsConsumeWhenNothingSpent(t *testing.T) {
	env := newDocGenEnv(t)
	env.OnActivity("RunStepActivity", mock.Anything, mock.Anything).Return(activities.RunStepOutput{Done: true}, nil).Once()
	env.OnActivity("RunTokenCostActivity", mock.Anything, mock.Anything).Return(activities.RunTokenCostOutput{}, nil).Once()

	env.ExecuteWorkflow(DocGenWorkflow, DocGenInput{Owner: "bob", Document: "empty", RunID: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
	env.AssertNotCalled(t, "ConsumeTokensActivity", mock.Anything, mock.Anything)
}

func TestDocGenWorkflowCancelSignal(t *testing.T) {
	env := newDocGenEnv(t)
	env.OnActivity("RunStepActivity", mock.Anything, mock.Anything).Return(activities.RunStepOutput{Status: "working", Queued: 3}, nil).After(time.Minute)
	env.OnActivity("CancelRunActivity", mock.Anything, activities.CancelRunInput{
		RunRef:  activities.RunRef{Owner: "alice", Document: "notes", RunID: 2},
		Message: "Cancelled",
	}).Return(nil).Once()
	env.OnActivity("RunTokenCostActivity", mock.Anything, mock.Anything).Return(activities.RunTokenCostOutput{Tokens: 30}, nil).Once()
	env.OnActivity("ConsumeTokensActivity", mock.Anything, activities.ConsumeTokensInput{Owner: "alice", Tokens: 30}).Return(nil).Once()

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalCancelRun, "")
	}, 90*time.Second)

	env.ExecuteWorkflow(DocGenWorkflow, DocGenInput{Owner: "alice", Document: "notes", RunID: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DocGenResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.True(t, out.Cancelled)
	require.Equal(t, 30, out.Tokens)
	env.AssertExpectations(t)
}

func TestDocGenWorkflowStepFailure(t *testing.T) {
	env := newDocGenEnv(t)
	env.OnActivity("RunStepActivity", mock.Anything, mock.Anything).Return(activities.RunStepOutput{}, errors.New("store unavailable"))

	env.ExecuteWorkflow(DocGenWorkflow, DocGenInput{Owner: "alice", Document: "notes", RunID: 1})
	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestDocGenWorkflowContinuesAsNew(t *testing.T) {
	old := stepsPerExecution
	stepsPerExecution = 2
	t.Cleanup(func() { stepsPerExecution = old })

	env := newDocGenEnv(t)
	env.OnActivity("RunStepActivity", mock.Anything, mock.Anything).Return(activities.RunStepOutput{Status: "working", Queued: 5}, nil).Times(2)

	env.ExecuteWorkflow(DocGenWorkflow, DocGenInput{Owner: "alice", Document: "notes", RunID: 1})
	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var cont *workflow.ContinueAsNewError
	require.True(t, errors.As(err, &cont))
}

func TestDocGenWorkflowID(t *testing.T) {
	require.Equal(t, "docgen-alice-my-notes-txt", DocGenWorkflowID("Alice", "My Notes.txt"))
	require.Equal(t, "docgen-a-b-c-d", DocGenWorkflowID("a_b", "c/d"))
}
