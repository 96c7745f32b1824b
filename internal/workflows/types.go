package workflows

const (
	QueryGetRunProgress = "GetRunProgress"
	SignalCancelRun     = "cancel-run"
)

type DocGenInput struct {
	Owner      string `json:"owner"`
	Document   string `json:"document"`
	RunID      int    `json:"run_id"`
	StepsSoFar int    `json:"steps_so_far,omitempty"`
}

type DocGenProgress struct {
	Owner          string `json:"owner"`
	Document       string `json:"document"`
	RunID          int    `json:"run_id"`
	Steps          int    `json:"steps"`
	CompletedSteps int    `json:"completed_steps"`
	Queued         int    `json:"queued"`
	Status         string `json:"status"`
	ResultID       int    `json:"result_id"`
	Done           bool   `json:"done"`
	Cancelled      bool   `json:"cancelled"`
}

type DocGenResult struct {
	RunID     int  `json:"run_id"`
	ResultID  int  `json:"result_id"`
	Tokens    int  `json:"tokens"`
	Cancelled bool `json:"cancelled"`
}
