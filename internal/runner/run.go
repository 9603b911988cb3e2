package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/credit-applier/internal/pipeline"
	"github.com/jonathan/credit-applier/internal/types"
)

// Run is a handle to a run started by a Controller.
type Run struct {
	id        uuid.UUID
	source    string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu     sync.RWMutex
	orch   *pipeline.Orchestrator
	state  types.RunState
	report *pipeline.Report
	err    error
}

// Snapshot is the observable state of a run.
type Snapshot struct {
	ID        uuid.UUID        `json:"id"`
	Source    string           `json:"source"`
	State     types.RunState   `json:"state"`
	StartedAt time.Time        `json:"started_at"`
	Report    *pipeline.Report `json:"report,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ID returns the run ID, which is also its journal key.
func (r *Run) ID() uuid.UUID {
	return r.id
}

// State returns the current state of the run.
func (r *Run) State() types.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.report == nil && r.orch != nil {
		return r.orch.State()
	}
	return r.state
}

// Cancel asks the run to stop. The current record is finished first.
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed once the run has finished, been journaled and notified.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run is over and returns its report and abort error.
func (r *Run) Wait() (*pipeline.Report, error) {
	<-r.done
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.report, r.err
}

// Snapshot returns the observable state. The report is only set once the run is over.
func (r *Run) Snapshot() Snapshot {
	s := Snapshot{
		ID:        r.id,
		Source:    r.source,
		State:     r.State(),
		StartedAt: r.startedAt,
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s.Report = r.report
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

func (r *Run) attach(orch *pipeline.Orchestrator) {
	r.mu.Lock()
	r.orch = orch
	r.mu.Unlock()
}

func (r *Run) finish(report *pipeline.Report, err error) *pipeline.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	if report == nil {
		report = &pipeline.Report{State: types.RunStateAborted, StartedAt: r.startedAt, FinishedAt: time.Now()}
		if err != nil {
			report.Err = err.Error()
		}
	}
	r.report = report
	r.state = report.State
	r.err = err
	return report
}

func (r *Run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
