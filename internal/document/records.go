package document

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"docworker/internal/util"
)

type TextRecord struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Item is a *Segment or a *Completion.
type Item interface {
	Record() *TextRecord
	IsSegment() bool
}

// Segment is a chunk of the source document.
type Segment struct {
	TextRecord
}

func (s *Segment) Record() *TextRecord { return &s.TextRecord }
func (s *Segment) IsSegment() bool     { return true }

// Suffix is the trailing number of the segment name ("Block 12" -> "12"),
// or "0" when the name does not end in a number.
func (s *Segment) Suffix() string {
	fields := strings.Fields(s.Name)
	if len(fields) < 2 {
		return "0"
	}
	last := fields[len(fields)-1]
	if _, err := strconv.Atoi(last); err != nil {
		return "0"
	}
	return last
}

// Completion is generated text. InputIDs are the items it was generated from.
type Completion struct {
	TextRecord
	PromptID      int   `json:"prompt_id"`
	InputIDs      []int `json:"input_ids"`
	TokenCost     int   `json:"token_cost"`
	IsFinalResult bool  `json:"is_final_result"`
}

func (c *Completion) Record() *TextRecord { return &c.TextRecord }
func (c *Completion) IsSegment() bool     { return false }

// RunRecord is one execution of a prompt over a set of items.
type RunRecord struct {
	RunID          int           `json:"run_id"`
	PromptID       int           `json:"prompt_id"`
	StartTime      time.Time     `json:"start_time"`
	StopTime       *time.Time    `json:"stop_time,omitempty"`
	ResultID       int           `json:"result_id"`
	CompletedSteps int           `json:"completed_steps"`
	StatusMessage  string        `json:"status_message"`
	Segments       []*Segment    `json:"segments"`
	Completions    []*Completion `json:"completions"`
	NextTextID     int           `json:"next_text_id"`
}

func (r *RunRecord) Stopped() bool {
	return r.StopTime != nil
}

func (r *RunRecord) Segment(id int) *Segment {
	for _, s := range r.Segments {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *RunRecord) Completion(id int) *Completion {
	for _, c := range r.Completions {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Item returns the segment or completion with id, or nil.
func (r *RunRecord) Item(id int) Item {
	if s := r.Segment(id); s != nil {
		return s
	}
	if c := r.Completion(id); c != nil {
		return c
	}
	return nil
}

func (r *RunRecord) ItemByName(name string) Item {
	for _, s := range r.Segments {
		if s.Name == name {
			return s
		}
	}
	for _, c := range r.Completions {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ItemIDs resolves item names to ids. An unknown name is an error.
func (r *RunRecord) ItemIDs(names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		it := r.ItemByName(name)
		if it == nil {
			return nil, fmt.Errorf("item %q: %w", name, util.ErrNotFound)
		}
		ids = append(ids, it.Record().ID)
	}
	return ids, nil
}

// Result returns the final completion, or nil before the run has one.
func (r *RunRecord) Result() *Completion {
	if r.ResultID == 0 {
		return nil
	}
	return r.Completion(r.ResultID)
}

func (r *RunRecord) newTextRecord(name, text string, tokenCount int) TextRecord {
	if r.NextTextID <= 0 {
		r.NextTextID = 1
	}
	rec := TextRecord{ID: r.NextTextID, Name: name, Text: text, TokenCount: tokenCount}
	r.NextTextID++
	return rec
}

// AddNewSegment appends a segment named "Block <n>".
func (r *RunRecord) AddNewSegment(text string, tokenCount int) *Segment {
	s := &Segment{TextRecord: r.newTextRecord(segmentName(len(r.Segments)+1), text, tokenCount)}
	r.Segments = append(r.Segments, s)
	return s
}

func (r *RunRecord) AddNewCompletion(inputIDs []int, text string, tokenCount, tokenCost int) *Completion {
	name := r.completionName(inputIDs)
	c := &Completion{
		TextRecord: r.newTextRecord(name, text, tokenCount),
		PromptID:   r.PromptID,
		InputIDs:   append([]int(nil), inputIDs...),
		TokenCost:  tokenCost,
	}
	r.Completions = append(r.Completions, c)
	return c
}

// SetFinalResult marks c as the single final result of the run.
func (r *RunRecord) SetFinalResult(c *Completion) {
	for _, other := range r.Completions {
		other.IsFinalResult = false
	}
	c.IsFinalResult = true
	r.ResultID = c.ID
}

// TokenCost sums the provider cost of every completion in the run.
func (r *RunRecord) TokenCost() int {
	total := 0
	for _, c := range r.Completions {
		total += c.TokenCost
	}
	return total
}

func segmentName(n int) string {
	return "Block " + strconv.Itoa(n)
}

// fromSegment reports whether c was generated from exactly one segment.
func (r *RunRecord) fromSegment(c *Completion) bool {
	return len(c.InputIDs) == 1 && r.Segment(c.InputIDs[0]) != nil
}

// completionName names a completion of a single segment
// "Generated <suffix>.<n>" and any other completion "Generated <n>", with n
// one past the highest number already used under that prefix.
func (r *RunRecord) completionName(inputIDs []int) string {
	prefix := "Generated "
	segmentKind := false
	if len(inputIDs) == 1 {
		if s := r.Segment(inputIDs[0]); s != nil {
			prefix = "Generated " + s.Suffix() + "."
			segmentKind = true
		}
	}
	highest := 0
	for _, c := range r.Completions {
		if r.fromSegment(c) != segmentKind || !strings.HasPrefix(c.Name, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(c.Name, prefix)); err == nil && n > highest {
			highest = n
		}
	}
	return prefix + strconv.Itoa(highest+1)
}
