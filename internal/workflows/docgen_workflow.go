package workflows

import (
	"time"

	"docworker/internal/activities"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// stepsPerExecution bounds history growth; longer runs continue as new.
var stepsPerExecution = 500

func DocGenWorkflow(ctx workflow.Context, input DocGenInput) (DocGenResult, error) {
	progress := DocGenProgress{
		Owner:    input.Owner,
		Document: input.Document,
		RunID:    input.RunID,
		Steps:    input.StepsSoFar,
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunProgress, func() (DocGenProgress, error) {
		return progress, nil
	}); err != nil {
		return DocGenResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	ref := activities.RunRef{Owner: input.Owner, Document: input.Document, RunID: input.RunID}
	cancelCh := workflow.GetSignalChannel(ctx, SignalCancelRun)

	for steps := 0; !progress.Done; steps++ {
		var message string
		if cancelCh.ReceiveAsync(&message) {
			if message == "" {
				message = "Cancelled"
			}
			if err := workflow.ExecuteActivity(ctx, "CancelRunActivity", activities.CancelRunInput{RunRef: ref, Message: message}).Get(ctx, nil); err != nil {
				return DocGenResult{}, err
			}
			progress.Cancelled = true
			progress.Status = message
			break
		}
		if steps >= stepsPerExecution {
			input.StepsSoFar = progress.Steps
			return DocGenResult{}, workflow.NewContinueAsNewError(ctx, DocGenWorkflow, input)
		}

		var out activities.RunStepOutput
		if err := workflow.ExecuteActivity(ctx, "RunStepActivity", ref).Get(ctx, &out); err != nil {
			return DocGenResult{}, err
		}
		progress.Steps++
		progress.Done = out.Done
		progress.Status = out.Status
		progress.CompletedSteps = out.CompletedSteps
		progress.Queued = out.Queued
		progress.ResultID = out.ResultID
	}

	var cost activities.RunTokenCostOutput
	if err := workflow.ExecuteActivity(ctx, "RunTokenCostActivity", ref).Get(ctx, &cost); err != nil {
		return DocGenResult{}, err
	}
	if cost.Tokens > 0 {
		if err := workflow.ExecuteActivity(ctx, "ConsumeTokensActivity", activities.ConsumeTokensInput{Owner: input.Owner, Tokens: cost.Tokens}).Get(ctx, nil); err != nil {
			return DocGenResult{}, err
		}
	}
	return DocGenResult{
		RunID:     input.RunID,
		ResultID:  progress.ResultID,
		Tokens:    cost.Tokens,
		Cancelled: progress.Cancelled,
	}, nil
}

// DocGenWorkflowID is the id of the workflow hosting runs of one document.
// Starting a second one while it is open fails.
func DocGenWorkflowID(owner, doc string) string {
	return "docgen-" + sanitizeID(owner) + "-" + sanitizeID(doc)
}
