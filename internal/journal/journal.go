// Package journal keeps an audit trail of runs and of every processed category.
// It records how many unit transactions reached the portal, including for
// categories that failed part way, so operators can reconcile by hand.
package journal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/credit-applier/internal/types"
)

// StateRunning marks a run that has started and not yet finished.
const StateRunning = "running"

// DefaultPath is the SQLite journal used when no database URL is configured.
const DefaultPath = "credit_agent.db"

// Run is one journaled run.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Source     string     `json:"source"`
	State      string     `json:"state"`
	Summary    string     `json:"summary,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome is one processed category of one record.
type Outcome struct {
	ID           int64     `json:"id"`
	RunID        uuid.UUID `json:"run_id"`
	Row          int       `json:"row"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Outcome      string    `json:"outcome"`
	Units        int       `json:"units"`
	UnitsApplied int       `json:"units_applied"`
	Detail       string    `json:"detail,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RunInput describes a run being started.
type RunInput struct {
	Source string // spreadsheet URL and worksheet, or CSV path
}

// OutcomeInput describes a processed category.
type OutcomeInput struct {
	Row          int
	Name         string
	Category     string
	Outcome      string
	Units        int
	UnitsApplied int
	Detail       string
	Error        string
}

// Journal persists runs and outcomes.
type Journal interface {
	StartRun(ctx context.Context, in RunInput) (uuid.UUID, error)
	RecordOutcome(ctx context.Context, runID uuid.UUID, in OutcomeInput) error
	FinishRun(ctx context.Context, runID uuid.UUID, state types.RunState, summary string) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListOutcomes(ctx context.Context, runID uuid.UUID) ([]Outcome, error)
	Close() error
}

// Open picks the backend: Postgres when databaseURL is set, otherwise SQLite at path.
// An empty path falls back to DefaultPath.
func Open(ctx context.Context, databaseURL, path string) (Journal, error) {
	if strings.TrimSpace(databaseURL) != "" {
		pg, err := ConnectPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	}
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	lite, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return lite, nil
}

// Nop discards everything.
type Nop struct{}

// StartRun returns a fresh ID.
func (Nop) StartRun(context.Context, RunInput) (uuid.UUID, error) { return uuid.New(), nil }

// RecordOutcome does nothing.
func (Nop) RecordOutcome(context.Context, uuid.UUID, OutcomeInput) error { return nil }

// FinishRun does nothing.
func (Nop) FinishRun(context.Context, uuid.UUID, types.RunState, string) error { return nil }

// ListRuns returns nothing.
func (Nop) ListRuns(context.Context, int) ([]Run, error) { return nil, nil }

// ListOutcomes returns nothing.
func (Nop) ListOutcomes(context.Context, uuid.UUID) ([]Outcome, error) { return nil, nil }

// Close does nothing.
func (Nop) Close() error { return nil }

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 50
	}
	return limit
}
