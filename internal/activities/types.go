package activities

// RunRef names one run of one document.
type RunRef struct {
	Owner    string `json:"owner"`
	Document string `json:"document"`
	RunID    int    `json:"run_id"`
}

type RunStepOutput struct {
	Done           bool   `json:"done"`
	Status         string `json:"status"`
	CompletedSteps int    `json:"completed_steps"`
	Queued         int    `json:"queued"`
	ResultID       int    `json:"result_id"`
}

type CancelRunInput struct {
	RunRef
	Message string `json:"message"`
}

type RunTokenCostOutput struct {
	Tokens int `json:"tokens"`
}

type ConsumeTokensInput struct {
	Owner  string `json:"owner"`
	Tokens int    `json:"tokens"`
}
