package metrics

/*
Labels and so on for metrics used in the rollout engine.
*/

const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelSuccess = "success"

	// Labels for rollout metrics
	LabelAction  = "action"
	LabelOutcome = "outcome"
)
