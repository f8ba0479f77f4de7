package domain

import "time"

// MetricsRecorder receives operational measurements. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	ToolExecuted(tool string, success bool, d time.Duration)
	LLMUsage(model string, usage Usage)
	TurnCost(info CostInfo)
	Delegation(outcome string)
}
