package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/portal"
	"github.com/jonathan/credit-applier/internal/types"
)

// OutcomeEvent describes a processed category. Empty cells produce no event.
type OutcomeEvent struct {
	Row    int
	Name   string
	Result Result
}

// OutcomeCallback is called for every category that had something to do.
type OutcomeCallback func(ctx context.Context, event OutcomeEvent)

// Options configures an Orchestrator.
type Options struct {
	YesToken  string
	Logger    *zap.Logger
	Status    StatusSink
	OnOutcome OutcomeCallback
}

// Orchestrator runs the record pipeline for one run.
// Idle -> LoggedIn -> Processing -> Finished, or Aborted from any non-terminal state.
type Orchestrator struct {
	store     RecordStore
	session   Session
	processor *Processor
	status    StatusSink
	logger    *zap.Logger
	onOutcome OutcomeCallback

	mu    sync.RWMutex
	state types.RunState
}

// NewOrchestrator creates an Orchestrator over store and session.
func NewOrchestrator(store RecordStore, session Session, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	status := opts.Status
	if status == nil {
		status = nopSink{}
	}
	return &Orchestrator{
		store:     store,
		session:   session,
		processor: NewProcessor(NewApplicator(logger), opts.YesToken, logger),
		status:    status,
		logger:    logger,
		onOutcome: opts.OnOutcome,
		state:     types.RunStateIdle,
	}
}

// State returns the current run state.
func (o *Orchestrator) State() types.RunState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s types.RunState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.logger.Debug("run state changed", zap.String("state", string(s)))
}

// Run loads the records, logs in and processes every record in store order.
// It returns the report and, when the run aborts, an *AbortError.
// An Orchestrator runs once.
func (o *Orchestrator) Run(ctx context.Context, creds types.Credentials) (*Report, error) {
	report := newReport()
	if st := o.State(); st != types.RunStateIdle {
		return report, fmt.Errorf("orchestrator already used (state %s)", st)
	}

	records, err := o.store.Load(ctx)
	if err != nil {
		return o.abort(report, "load records", err)
	}
	report.Rows = len(records)
	o.status.Report(fmt.Sprintf("Loaded %d rows", len(records)))

	if err := o.session.Login(ctx, creds); err != nil {
		return o.abort(report, "login", err)
	}
	if err := o.session.NavigateToEntityList(ctx); err != nil {
		return o.abort(report, "open member list", err)
	}
	o.setState(types.RunStateLoggedIn)
	o.status.Report("Logged in")

	o.setState(types.RunStateProcessing)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return o.abort(report, "processing", err)
		}

		if !rec.HasName() {
			report.RowsSkipped++
			o.status.Report(fmt.Sprintf("Row %d has no name, skipped", rec.Row))
			continue
		}

		// Cancellation is honoured between records only; every portal wait is bounded.
		if err := o.processRecord(context.WithoutCancel(ctx), records, rec, report); err != nil {
			return o.abort(report, "processing", err)
		}
	}

	if err := o.store.Persist(ctx, records); err != nil {
		return o.abort(report, "final save", err)
	}

	o.setState(types.RunStateFinished)
	report.State = types.RunStateFinished
	report.FinishedAt = time.Now()
	o.status.Report(report.Summary())
	o.logger.Info("run finished",
		zap.Int("applied", report.Applied),
		zap.Int("failed", report.Failed),
		zap.Int("invalid", report.Invalid),
		zap.Int("transactions", report.Transactions),
	)
	return report, nil
}

// processRecord runs every category of rec in order. A returned error is fatal.
func (o *Orchestrator) processRecord(ctx context.Context, records []*types.Record, rec *types.Record, report *Report) error {
	name := rec.Name()
	log := o.logger.With(zap.Int("row", rec.Row), zap.String("name", name))

	for _, cat := range types.Categories() {
		res := o.processor.Process(ctx, o.session, rec, cat)
		report.add(res)
		if res.Outcome != OutcomeSkipped || res.Detail != DetailEmpty {
			o.emit(ctx, OutcomeEvent{Row: rec.Row, Name: name, Result: res})
		}

		switch res.Outcome {
		case OutcomeApplied:
			rec.Clear(cat.Kind)
			if err := o.store.Persist(ctx, records); err != nil {
				return err
			}
			log.Info("category applied", zap.String("category", string(cat.Kind)), zap.Int("units", res.Units))
			o.status.Report(fmt.Sprintf("%s: %s applied (%d transactions)", name, cat.Label, res.Units))

		case OutcomeFailed:
			if res.Fatal() {
				return res.Err
			}
			msg := fmt.Sprintf("%s: %s failed: %v", name, cat.Label, res.Err)
			report.warn(msg)
			log.Warn("category failed", zap.String("category", string(cat.Kind)),
				zap.Int("units_applied", res.UnitsApplied), zap.Error(res.Err))
			o.status.Report(msg)

		case OutcomeInvalid:
			msg := fmt.Sprintf("%s: %s left for review: %v", name, cat.Label, res.Err)
			report.warn(msg)
			o.status.Report(msg)

		case OutcomeSkipped:
			if res.Detail != DetailEmpty {
				log.Debug("category skipped", zap.String("category", string(cat.Kind)), zap.String("detail", res.Detail))
			}
		}

		if res.Opened {
			if err := o.session.GoBackAndRefresh(ctx); err != nil {
				if !portal.IsRecoverable(err) {
					return fmt.Errorf("return to member list: %w", err)
				}
				report.NavigationFailures++
				report.warn(fmt.Sprintf("%s: could not return to member list: %v", name, err))
				log.Warn("navigation back failed", zap.Error(err))
			}
		}
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, ev OutcomeEvent) {
	if o.onOutcome != nil {
		o.onOutcome(ctx, ev)
	}
}

// abort moves the run to Aborted. No persist happens after this point.
func (o *Orchestrator) abort(report *Report, stage string, err error) (*Report, error) {
	o.setState(types.RunStateAborted)
	report.State = types.RunStateAborted
	report.FinishedAt = time.Now()
	report.Err = err.Error()

	o.logger.Error("run aborted", zap.String("stage", stage), zap.Error(err))
	o.status.Report(report.Summary())
	return report, &AbortError{Stage: stage, Cause: err}
}
