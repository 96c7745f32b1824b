// Package document holds the persistent model of an uploaded document: its
// source segments, the runs made over them and the prompt registry.
package document

import (
	"fmt"
	"time"

	"docworker/internal/util"
)

// RunCeiling is how long a run without a stop time counts as running.
const RunCeiling = time.Hour

// StartMessage is the status of a run that has not reported progress yet.
const StartMessage = "Running..."

type Document struct {
	Name        string       `json:"name"`
	ContentHash string       `json:"content_hash"`
	Segments    []*Segment   `json:"segments"`
	Runs        []*RunRecord `json:"runs"`
	Prompts     PromptSet    `json:"prompts"`
	NextRunID   int          `json:"next_run_id"`
	State       *RunState    `json:"run_state,omitempty"`
}

func New(name, contentHash string) *Document {
	return &Document{
		Name:        name,
		ContentHash: contentHash,
		Prompts:     NewPromptSet(),
		NextRunID:   1,
	}
}

// FromChunks builds a document whose segments are the given chunks.
func FromChunks(name, contentHash string, chunks []util.Chunk) *Document {
	d := New(name, contentHash)
	for _, c := range chunks {
		d.AddSegment(c.Text, c.TokenCount)
	}
	return d
}

// AddSegment appends a source segment named "Block <n>".
func (d *Document) AddSegment(text string, tokenCount int) *Segment {
	s := &Segment{TextRecord: TextRecord{
		ID:         d.maxTextID() + 1,
		Name:       segmentName(len(d.Segments) + 1),
		Text:       text,
		TokenCount: tokenCount,
	}}
	d.Segments = append(d.Segments, s)
	return s
}

func (d *Document) SegmentIDs() []int {
	ids := make([]int, 0, len(d.Segments))
	for _, s := range d.Segments {
		ids = append(ids, s.ID)
	}
	return ids
}

// DocTokens is the token count of the source segments.
func (d *Document) DocTokens() int {
	total := 0
	for _, s := range d.Segments {
		total += s.TokenCount
	}
	return total
}

func (d *Document) maxTextID() int {
	highest := 0
	for _, s := range d.Segments {
		if s.ID > highest {
			highest = s.ID
		}
	}
	for _, r := range d.Runs {
		if r.NextTextID-1 > highest {
			highest = r.NextTextID - 1
		}
		for _, c := range r.Completions {
			if c.ID > highest {
				highest = c.ID
			}
		}
	}
	return highest
}

// NewRunRecord allocates the next run id and appends a run holding the
// document segments. Text ids continue from the highest id in the document.
func (d *Document) NewRunRecord(promptID int, now time.Time) *RunRecord {
	if d.NextRunID <= 0 {
		d.NextRunID = 1
	}
	r := &RunRecord{
		RunID:      d.NextRunID,
		PromptID:   promptID,
		StartTime:  now,
		NextTextID: d.maxTextID() + 1,
		Segments:   make([]*Segment, 0, len(d.Segments)),
	}
	for _, s := range d.Segments {
		cp := *s
		r.Segments = append(r.Segments, &cp)
	}
	d.NextRunID++
	d.Runs = append(d.Runs, r)
	return r
}

// Run returns the run with runID, the latest run when runID is 0, or nil.
func (d *Document) Run(runID int) *RunRecord {
	if runID == 0 {
		return d.CurrentRun()
	}
	for _, r := range d.Runs {
		if r.RunID == runID {
			return r
		}
	}
	return nil
}

func (d *Document) CurrentRun() *RunRecord {
	if len(d.Runs) == 0 {
		return nil
	}
	return d.Runs[len(d.Runs)-1]
}

// IsRunning reports whether the run has no stop time and started less than
// RunCeiling ago.
func (d *Document) IsRunning(runID int, now time.Time) bool {
	r := d.Run(runID)
	if r == nil || r.StartTime.IsZero() || r.StopTime != nil {
		return false
	}
	return now.Sub(r.StartTime) < RunCeiling
}

func (d *Document) StatusMessage(runID int) string {
	if r := d.Run(runID); r != nil {
		return r.StatusMessage
	}
	return ""
}

// StartRun opens a run of promptID over itemIDs, or over every segment when
// itemIDs is nil. Completions from earlier runs are copied into the new run
// with their inputs. Ids that resolve nowhere are dropped.
func (d *Document) StartRun(promptID int, itemIDs []int, now time.Time) (*RunRecord, error) {
	if cur := d.CurrentRun(); cur != nil && d.IsRunning(cur.RunID, now) {
		return nil, util.ErrRunInProgress
	}
	if itemIDs == nil {
		itemIDs = d.SegmentIDs()
	}
	var imports [][]*Completion
	queue := make([]int, 0, len(itemIDs))
	sources := make([]int, 0, len(itemIDs))
	for _, id := range itemIDs {
		if d.segment(id) != nil {
			queue = append(queue, id)
			sources = append(sources, id)
			continue
		}
		src, c := d.findCompletion(id)
		if c == nil {
			continue
		}
		imports = append(imports, src.lineage(c))
		queue = append(queue, id)
	}

	run := d.NewRunRecord(promptID, now)
	run.StatusMessage = StartMessage
	for _, chain := range imports {
		for _, c := range chain {
			if run.Completion(c.ID) != nil {
				continue
			}
			cp := *c
			cp.InputIDs = append([]int(nil), c.InputIDs...)
			cp.IsFinalResult = false
			run.Completions = append(run.Completions, &cp)
		}
	}
	d.State = NewRunState(run.RunID, queue, sources)
	return run, nil
}

// ActiveState returns the run state when it belongs to run.
func (d *Document) ActiveState(run *RunRecord) *RunState {
	if d.State == nil || run == nil || d.State.RunID != run.RunID {
		return nil
	}
	return d.State
}

// RunInputTokens sums the token counts of the items queued in the current run.
func (d *Document) RunInputTokens() int {
	run := d.CurrentRun()
	st := d.ActiveState(run)
	if st == nil {
		return 0
	}
	total := 0
	for _, id := range st.ToRun {
		if it := run.Item(id); it != nil {
			total += it.Record().TokenCount
		}
	}
	return total
}

// CancelRun stops the current run, keeping everything produced so far.
func (d *Document) CancelRun(message string, now time.Time) {
	run := d.CurrentRun()
	if run == nil || run.StopTime != nil {
		return
	}
	if st := d.ActiveState(run); st != nil {
		st.Cancel()
	}
	run.StopTime = &now
	run.StatusMessage = message
}

// CompleteRun records the final result, if any, and stops the run.
func (d *Document) CompleteRun(run *RunRecord, resultID int, now time.Time) error {
	if resultID != 0 {
		c := run.Completion(resultID)
		if c == nil {
			return fmt.Errorf("complete run %d: result %d: %w", run.RunID, resultID, util.ErrNotFound)
		}
		run.SetFinalResult(c)
	}
	run.StopTime = &now
	run.StatusMessage = ""
	return nil
}

// TokenCost sums completion costs over all runs.
func (d *Document) TokenCost() int {
	total := 0
	for _, r := range d.Runs {
		total += r.TokenCost()
	}
	return total
}

func (d *Document) segment(id int) *Segment {
	for _, s := range d.Segments {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// findCompletion searches runs newest first.
func (d *Document) findCompletion(id int) (*RunRecord, *Completion) {
	for i := len(d.Runs) - 1; i >= 0; i-- {
		if c := d.Runs[i].Completion(id); c != nil {
			return d.Runs[i], c
		}
	}
	return nil, nil
}
