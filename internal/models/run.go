package models

import "time"

// RunSummary describes one checkpoint run over the watch list.
type RunSummary struct {
	Checkpoint string        `json:"checkpoint"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`

	Attempted int `json:"attempted"`
	// Skipped holds symbols for which no source returned data.
	Skipped []string `json:"skipped,omitempty"`
	// Abandoned holds symbols not started before shutdown.
	Abandoned []string `json:"abandoned,omitempty"`

	Notified           int            `json:"notified"`
	Suppressed         int            `json:"suppressed"`
	SuppressionReasons map[string]int `json:"suppression_reasons,omitempty"`
	DispatchFailures   int            `json:"dispatch_failures"`

	Signals []Signal `json:"signals,omitempty"`
}

// Completed returns the number of symbols that produced a signal.
func (r *RunSummary) Completed() int {
	return r.Notified + r.Suppressed
}
