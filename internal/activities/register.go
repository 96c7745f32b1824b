package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.RunStepActivity)
	w.RegisterActivity(a.CancelRunActivity)
	w.RegisterActivity(a.RunTokenCostActivity)
	w.RegisterActivity(a.ConsumeTokensActivity)
}
