package activities

import (
	"context"
	"fmt"

	"docworker/internal/docgen"
	"docworker/internal/document"
	"docworker/internal/llm"
	"docworker/internal/logger"
	"docworker/internal/storage"

	"go.temporal.io/sdk/activity"
)

type Activities struct {
	store  storage.DocumentStore
	quota  docgen.Quota
	driver *docgen.Driver
	log    *logger.Logger
}

func New(store storage.DocumentStore, quota docgen.Quota, driver *docgen.Driver, log *logger.Logger) *Activities {
	return &Activities{store: store, quota: quota, driver: driver, log: logger.OrNop(log)}
}

// load returns the document and its run when that run is still the
// document's current one.
func (a *Activities) load(ctx context.Context, ref RunRef) (*document.Document, *document.RunRecord, error) {
	doc, err := a.store.Load(ctx, ref.Owner, ref.Document)
	if err != nil {
		return nil, nil, err
	}
	run := doc.CurrentRun()
	if run == nil || run.RunID != ref.RunID {
		return doc, nil, nil
	}
	return doc, run, nil
}

func (a *Activities) saver(owner string) docgen.SaveFunc {
	return func(ctx context.Context, doc *document.Document) error {
		return a.store.Save(ctx, owner, doc)
	}
}

// RunStepActivity advances the run by one driver step and checkpoints it.
func (a *Activities) RunStepActivity(ctx context.Context, in RunRef) (RunStepOutput, error) {
	doc, run, err := a.load(ctx, in)
	if err != nil {
		return RunStepOutput{}, err
	}
	if run == nil {
		a.log.Warn("run superseded", "owner", in.Owner, "document", in.Document, "run_id", in.RunID)
		return RunStepOutput{Done: true}, nil
	}
	ctx = llm.WithCallInfo(ctx, llm.CallInfo{Owner: in.Owner, Document: in.Document, RunID: in.RunID})
	persist := a.saver(in.Owner)
	save := func(ctx context.Context, doc *document.Document) error {
		activity.RecordHeartbeat(ctx, run.CompletedSteps)
		return persist(ctx, doc)
	}
	done, err := a.driver.Step(ctx, doc, save)
	if err != nil {
		return RunStepOutput{}, fmt.Errorf("run step: %w", err)
	}
	out := RunStepOutput{
		Done:           done,
		Status:         run.StatusMessage,
		CompletedSteps: run.CompletedSteps,
		ResultID:       run.ResultID,
	}
	if st := doc.ActiveState(run); st != nil {
		out.Queued = len(st.ToRun)
	}
	return out, nil
}

func (a *Activities) CancelRunActivity(ctx context.Context, in CancelRunInput) error {
	doc, run, err := a.load(ctx, in.RunRef)
	if err != nil {
		return err
	}
	if run == nil || run.Stopped() {
		return nil
	}
	a.log.Info("cancelling run", "owner", in.Owner, "document", in.Document, "run_id", in.RunID)
	return a.driver.Cancel(ctx, doc, in.Message, a.saver(in.Owner))
}

func (a *Activities) RunTokenCostActivity(ctx context.Context, in RunRef) (RunTokenCostOutput, error) {
	doc, err := a.store.Load(ctx, in.Owner, in.Document)
	if err != nil {
		return RunTokenCostOutput{}, err
	}
	return RunTokenCostOutput{Tokens: docgen.RunTokenCost(doc.Run(in.RunID))}, nil
}

func (a *Activities) ConsumeTokensActivity(ctx context.Context, in ConsumeTokensInput) error {
	if a.quota == nil || in.Tokens <= 0 {
		return nil
	}
	return a.quota.ConsumeTokens(ctx, in.Owner, in.Tokens)
}
