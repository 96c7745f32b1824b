// Package docgen drives a run: it batches queued items into completions,
// reduces multiple results pass by pass, and checkpoints after every step.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docworker/internal/document"
	"docworker/internal/llm"
	"docworker/internal/logger"
	"docworker/internal/tokenizer"
	"docworker/internal/util"
)

// CancelledMessage is the status of a run stopped by its context.
const CancelledMessage = "Cancelled"

// InsufficientTokensMessage is the status of a run refused by the quota check.
const InsufficientTokensMessage = "Insufficient tokens"

// SaveFunc persists the document. The driver calls it at every checkpoint.
type SaveFunc func(ctx context.Context, doc *document.Document) error

// Quota is the account check made around a run.
type Quota interface {
	AvailableTokens(ctx context.Context, owner string) (int, error)
	ConsumeTokens(ctx context.Context, owner string, n int) error
}

type Driver struct {
	completer llm.Completer
	tok       tokenizer.Tokenizer
	budget    int
	log       *logger.Logger
	now       func() time.Time
}

func NewDriver(completer llm.Completer, tok tokenizer.Tokenizer, budget int, log *logger.Logger) *Driver {
	if budget <= 0 {
		budget = util.DefaultChunkBudget
	}
	return &Driver{completer: completer, tok: tok, budget: budget, log: logger.OrNop(log), now: time.Now}
}

// StartRun registers promptText if needed and opens a run over itemIDs, or
// every segment when itemIDs is nil.
func (d *Driver) StartRun(doc *document.Document, promptText string, itemIDs []int) (*document.RunRecord, error) {
	promptID := doc.Prompts.PromptID(promptText)
	run, err := doc.StartRun(promptID, itemIDs, d.now())
	if err != nil {
		return nil, err
	}
	d.log.Info("run started", "document", doc.Name, "run_id", run.RunID, "prompt", doc.Prompts.Name(promptID), "items", len(doc.State.ToRun))
	return run, nil
}

// Launch starts a run and checks the queued input against the owner's
// quota. A run the owner cannot afford is cancelled before any completion
// and ErrInsufficientTokens is returned with the stopped run.
func (d *Driver) Launch(ctx context.Context, doc *document.Document, quota Quota, owner, promptText string, itemIDs []int) (*document.RunRecord, error) {
	run, err := d.StartRun(doc, promptText, itemIDs)
	if err != nil {
		return nil, err
	}
	if quota == nil {
		return run, nil
	}
	available, err := quota.AvailableTokens(ctx, owner)
	if err != nil {
		doc.CancelRun(err.Error(), d.now())
		return run, fmt.Errorf("check quota: %w", err)
	}
	if need := doc.RunInputTokens(); available < need {
		d.log.Warn("run refused", "owner", owner, "document", doc.Name, "needed", need, "available", available)
		doc.CancelRun(InsufficientTokensMessage, d.now())
		return run, util.ErrInsufficientTokens
	}
	return run, nil
}

// Step performs one unit of work on the current run: a pass-through of a
// lone intermediate result, one batch completion, or the end of a pass.
// done reports that the run has stopped.
func (d *Driver) Step(ctx context.Context, doc *document.Document, save SaveFunc) (done bool, err error) {
	run := doc.CurrentRun()
	st := doc.ActiveState(run)
	if run == nil || st == nil || run.Stopped() {
		return true, nil
	}

	if _, ok := st.NextItem(); !ok {
		return d.endPass(ctx, doc, run, st, save)
	}

	if st.SkipRemaining() {
		id := st.PopItem()
		st.NoteStepComplete(id)
		d.log.Debug("skipping completion of intermediate result", "run_id", run.RunID, "item", id)
		return false, save(ctx, doc)
	}

	ids, texts, last := d.fillBatch(run, st)
	if len(ids) == 0 {
		d.log.Warn("no content for batch", "run_id", run.RunID)
		return false, save(ctx, doc)
	}

	promptText := doc.Prompts.Text(run.PromptID)
	run.StatusMessage = fmt.Sprintf("%s on %s", doc.Prompts.Name(run.PromptID), last)
	if err := save(ctx, doc); err != nil {
		return false, err
	}

	maxTokens := d.budget/2 - 1
	if st.IsLastCompletion() {
		maxTokens = llm.NoLimit
	}
	callCtx := llm.WithRetryNotice(ctx, func(attempt int, err error, _ time.Duration) {
		run.StatusMessage = err.Error()
		if serr := save(ctx, doc); serr != nil {
			d.log.Warn("save retry status", "error", serr.Error())
		}
	})
	callCtx = llm.WithCallInfo(callCtx, llm.CallInfo{Document: doc.Name, RunID: run.RunID, Owner: llm.CallInfoFrom(ctx).Owner})

	d.log.Info("batch started", "run_id", run.RunID, "items", len(ids), "max_tokens", maxTokens)
	resp := d.completer.Complete(callCtx, promptText, strings.Join(texts, "\n"), maxTokens)
	if llm.IsCancelled(resp) && ctx.Err() != nil {
		// Popped items are abandoned; the caller cancels the run.
		return false, ctx.Err()
	}

	text := resp.Text
	tokenCount := resp.CompletionTokens
	if resp.Err != nil {
		text = resp.Err.Error()
		tokenCount = d.count(text)
		run.StatusMessage = text
		d.log.Error("batch failed", "run_id", run.RunID, "error", text)
	} else if tokenCount == 0 {
		tokenCount = d.count(text)
	}
	c := run.AddNewCompletion(ids, text, tokenCount, resp.PromptTokens+resp.CompletionTokens)
	st.NoteStepComplete(c.ID)
	run.CompletedSteps++
	d.log.Info("batch finished", "run_id", run.RunID, "completion", c.Name, "truncated", resp.Truncated)
	return false, save(ctx, doc)
}

// fillBatch pops items until the next one would overflow the budget, always
// taking at least one. Ids that no longer resolve are dropped.
func (d *Driver) fillBatch(run *document.RunRecord, st *document.RunState) (ids []int, texts []string, lastName string) {
	total := 0
	for {
		id, ok := st.NextItem()
		if !ok {
			return ids, texts, lastName
		}
		it := run.Item(id)
		if it == nil {
			st.PopItem()
			continue
		}
		rec := it.Record()
		if len(ids) > 0 && total+rec.TokenCount > d.budget {
			return ids, texts, lastName
		}
		st.PopItem()
		ids = append(ids, id)
		texts = append(texts, rec.Text)
		lastName = rec.Name
		total += rec.TokenCount
	}
}

func (d *Driver) endPass(ctx context.Context, doc *document.Document, run *document.RunRecord, st *document.RunState, save SaveFunc) (bool, error) {
	resultID, more := st.NextResultSet()
	if more {
		d.log.Info("reduction pass", "run_id", run.RunID, "results", len(st.ToRun))
		return false, save(ctx, doc)
	}
	if err := doc.CompleteRun(run, resultID, d.now()); err != nil {
		return true, err
	}
	d.log.Info("run complete", "run_id", run.RunID, "result_id", resultID, "token_cost", run.TokenCost())
	return true, save(ctx, doc)
}

// RunToCompletion steps the current run until it stops. A cancelled ctx
// cancels the run with CancelledMessage and keeps its partial work.
func (d *Driver) RunToCompletion(ctx context.Context, doc *document.Document, save SaveFunc) error {
	for {
		if ctx.Err() != nil {
			return d.cancel(doc, save, ctx.Err())
		}
		done, err := d.Step(ctx, doc, save)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return d.cancel(doc, save, err)
			}
			return err
		}
		if done {
			return nil
		}
	}
}

func (d *Driver) cancel(doc *document.Document, save SaveFunc, cause error) error {
	doc.CancelRun(CancelledMessage, d.now())
	d.log.Warn("run cancelled", "document", doc.Name, "error", cause.Error())
	if err := save(context.Background(), doc); err != nil {
		return err
	}
	return cause
}

// Cancel stops the current run with message and saves it.
func (d *Driver) Cancel(ctx context.Context, doc *document.Document, message string, save SaveFunc) error {
	doc.CancelRun(message, d.now())
	return save(ctx, doc)
}

// RunTokenCost is what a finished run is charged against the owner's quota.
func RunTokenCost(run *document.RunRecord) int {
	if run == nil {
		return 0
	}
	return run.TokenCost()
}

func (d *Driver) count(text string) int {
	if d.tok == nil {
		return len(strings.Fields(text))
	}
	return d.tok.Count(text)
}
