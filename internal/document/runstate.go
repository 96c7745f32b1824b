package document

// RunState is the work queue of the active run. It is persisted with the
// document so an interrupted run can resume from its last checkpoint.
type RunState struct {
	RunID          int   `json:"run_id"`
	ToRun          []int `json:"to_run"`
	SourceItems    []int `json:"source_items"`
	CurrentResults []int `json:"current_results"`
	CompletedRun   []int `json:"completed_run"`
}

func NewRunState(runID int, itemIDs, sourceItems []int) *RunState {
	return &RunState{
		RunID:       runID,
		ToRun:       append([]int(nil), itemIDs...),
		SourceItems: append([]int(nil), sourceItems...),
	}
}

// NextItem peeks at the head of the queue.
func (s *RunState) NextItem() (int, bool) {
	if len(s.ToRun) == 0 {
		return 0, false
	}
	return s.ToRun[0], true
}

func (s *RunState) PopItem() int {
	id := s.ToRun[0]
	s.ToRun = s.ToRun[1:]
	return id
}

// SkipRemaining reports whether the queue holds a single intermediate result
// that should pass through without another completion.
func (s *RunState) SkipRemaining() bool {
	return len(s.ToRun) == 1 && !containsID(s.SourceItems, s.ToRun[0])
}

func (s *RunState) NoteStepComplete(id int) {
	s.CurrentResults = append(s.CurrentResults, id)
	if !containsID(s.CompletedRun, id) {
		s.CompletedRun = append(s.CompletedRun, id)
	}
}

// IsLastCompletion reports whether the batch just taken from the queue is the
// last completion the run will make.
func (s *RunState) IsLastCompletion() bool {
	return len(s.ToRun) == 0 && len(s.CurrentResults) == 0
}

// NextResultSet is called once the queue is empty. With several results they
// become the queue of another pass and more is true. With one result its id
// is returned. With none the run ends without a result.
func (s *RunState) NextResultSet() (resultID int, more bool) {
	switch len(s.CurrentResults) {
	case 0:
		return 0, false
	case 1:
		id := s.CurrentResults[0]
		s.CurrentResults = nil
		return id, false
	default:
		s.ToRun = s.CurrentResults
		s.CurrentResults = nil
		return 0, true
	}
}

// QueuedIDs returns a copy of the pending queue.
func (s *RunState) QueuedIDs() []int {
	return append([]int(nil), s.ToRun...)
}

func (s *RunState) Cancel() {
	s.ToRun = nil
}

func containsID(ids []int, id int) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
