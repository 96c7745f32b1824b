package api

import (
	"context"

	"docworker/internal/workflows"

	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

// RunLauncher hands opened runs to whatever executes them.
type RunLauncher interface {
	Start(ctx context.Context, owner, doc string, runID int) error
	Progress(ctx context.Context, owner, doc string) (workflows.DocGenProgress, error)
	Cancel(ctx context.Context, owner, doc, message string) error
}

// TemporalLauncher runs each document's runs in a DocGenWorkflow.
type TemporalLauncher struct {
	client    tclient.Client
	taskQueue string
}

func NewTemporalLauncher(c tclient.Client, taskQueue string) *TemporalLauncher {
	return &TemporalLauncher{client: c, taskQueue: taskQueue}
}

func (l *TemporalLauncher) Start(ctx context.Context, owner, doc string, runID int) error {
	_, err := l.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       workflows.DocGenWorkflowID(owner, doc),
		TaskQueue:                                l.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.DocGenWorkflow, workflows.DocGenInput{Owner: owner, Document: doc, RunID: runID})
	return err
}

func (l *TemporalLauncher) Progress(ctx context.Context, owner, doc string) (workflows.DocGenProgress, error) {
	var prog workflows.DocGenProgress
	resp, err := l.client.QueryWorkflow(ctx, workflows.DocGenWorkflowID(owner, doc), "", workflows.QueryGetRunProgress)
	if err != nil {
		return prog, err
	}
	err = resp.Get(&prog)
	return prog, err
}

func (l *TemporalLauncher) Cancel(ctx context.Context, owner, doc, message string) error {
	return l.client.SignalWorkflow(ctx, workflows.DocGenWorkflowID(owner, doc), "", workflows.SignalCancelRun, message)
}
