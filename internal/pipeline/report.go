package pipeline

import (
	"fmt"
	"time"

	"github.com/jonathan/credit-applier/internal/types"
)

// Report aggregates the outcomes of one run.
type Report struct {
	State       types.RunState `json:"state"`
	Rows        int            `json:"rows"`
	RowsSkipped int            `json:"rows_skipped"` // rows without a name

	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
	Failed  int `json:"failed"`

	Transactions       int `json:"transactions"`
	NavigationFailures int `json:"navigation_failures"`

	Warnings   []string  `json:"warnings,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Err        string    `json:"error,omitempty"`
}

func newReport() *Report {
	return &Report{State: types.RunStateIdle, StartedAt: time.Now()}
}

func (r *Report) add(res Result) {
	switch res.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeInvalid:
		r.Invalid++
	case OutcomeFailed:
		r.Failed++
	}
	r.Transactions += res.UnitsApplied
}

func (r *Report) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// HasWarnings reports whether any category failed or was left invalid.
func (r *Report) HasWarnings() bool {
	return r.Failed > 0 || r.Invalid > 0 || r.NavigationFailures > 0
}

// Summary is the one-line terminal message of the run.
func (r *Report) Summary() string {
	counts := fmt.Sprintf("%d applied, %d failed, %d invalid, %d transactions",
		r.Applied, r.Failed, r.Invalid, r.Transactions)

	switch {
	case r.State == types.RunStateAborted:
		return fmt.Sprintf("run aborted: %s (%s)", r.Err, counts)
	case r.HasWarnings():
		return fmt.Sprintf("records processed with warnings: %s", counts)
	default:
		return fmt.Sprintf("records processed successfully: %s", counts)
	}
}
