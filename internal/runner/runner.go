// Package runner owns the lifecycle of runs: it creates the store and the
// browser session, drives one Orchestrator on a background worker, journals
// every outcome and sends the terminal notification.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/credit-applier/internal/config"
	"github.com/jonathan/credit-applier/internal/journal"
	"github.com/jonathan/credit-applier/internal/notify"
	"github.com/jonathan/credit-applier/internal/pipeline"
	"github.com/jonathan/credit-applier/internal/status"
	"github.com/jonathan/credit-applier/internal/types"
)

// ErrBusy is returned by Start while another run is live.
var ErrBusy = errors.New("a run is already in progress")

// DefaultStatusBuffer is the number of status messages queued between the
// worker and the sink before new ones are dropped.
const DefaultStatusBuffer = 256

// Options configures a Controller. Zero fields use defaults.
type Options struct {
	Sessions     SessionFactory
	Stores       StoreFactory
	Journal      journal.Journal
	Notifier     notify.Notifier
	Logger       *zap.Logger
	StatusBuffer int
}

// Controller runs at most one run at a time.
type Controller struct {
	sessions SessionFactory
	stores   StoreFactory
	journal  journal.Journal
	notifier notify.Notifier
	logger   *zap.Logger
	buffer   int

	mu      sync.Mutex
	current *Run
}

// New creates a Controller.
func New(opts Options) *Controller {
	c := &Controller{
		sessions: opts.Sessions,
		stores:   opts.Stores,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		buffer:   opts.StatusBuffer,
	}
	if c.sessions == nil {
		c.sessions = ChromeSessions
	}
	if c.stores == nil {
		c.stores = FileStores
	}
	if c.journal == nil {
		c.journal = journal.Nop{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.buffer <= 0 {
		c.buffer = DefaultStatusBuffer
	}
	return c
}

// Start launches a run on a background worker. ctx bounds the whole run,
// so callers serving requests should pass a context that outlives the request.
// Messages reach sink in order; sink may be nil.
func (c *Controller) Start(ctx context.Context, cfg *config.RunConfig, sink status.Sink) (*Run, error) {
	if cfg == nil {
		return nil, fmt.Errorf("run configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = status.Discard
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.finished() {
		return nil, ErrBusy
	}

	id, err := c.journal.StartRun(ctx, journal.RunInput{Source: cfg.Source()})
	if err != nil {
		id = uuid.New()
		c.logger.Warn("journal unavailable, run is not recorded", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:        id,
		source:    cfg.Source(),
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     types.RunStateIdle,
	}
	c.current = r

	go c.execute(runCtx, r, cfg, sink)
	return r, nil
}

// Execute runs synchronously and returns the report and the abort error, if any.
func (c *Controller) Execute(ctx context.Context, cfg *config.RunConfig, sink status.Sink) (*pipeline.Report, error) {
	r, err := c.Start(ctx, cfg, sink)
	if err != nil {
		return nil, err
	}
	return r.Wait()
}

// Current returns the latest run, live or finished, or nil before the first run.
func (c *Controller) Current() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Journal returns the journal runs are recorded in.
func (c *Controller) Journal() journal.Journal {
	return c.journal
}

// execute runs the worker and the status pump and then finalises the run.
func (c *Controller) execute(ctx context.Context, r *Run, cfg *config.RunConfig, sink status.Sink) {
	defer r.cancel()
	logger := c.logger.With(zap.String("run_id", r.id.String()))
	ch := status.NewChannel(c.buffer)

	var (
		report *pipeline.Report
		runErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		for msg := range ch.C() {
			sink.Report(msg)
		}
		return nil
	})
	g.Go(func() error {
		defer ch.Close()
		report, runErr = c.work(ctx, r, cfg, ch, logger)
		return nil
	})
	_ = g.Wait()

	if n := ch.Dropped(); n > 0 {
		logger.Warn("status messages dropped", zap.Int64("count", n))
	}

	report = r.finish(report, runErr)
	c.finalize(r, report, logger)
	close(r.done)
}

// work creates the store and the session and drives the orchestrator.
// The session is closed on every path, panics included.
func (c *Controller) work(ctx context.Context, r *Run, cfg *config.RunConfig, sink status.Sink, logger *zap.Logger) (report *pipeline.Report, err error) {
	startedAt := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("run panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			report, err = aborted(startedAt, "processing", fmt.Errorf("panic: %v", p))
			sink.Report(report.Summary())
		}
	}()

	st, err := c.stores(ctx, cfg)
	if err != nil {
		report, err = aborted(startedAt, "open record store", err)
		sink.Report(report.Summary())
		return report, err
	}

	session, err := c.sessions(ctx, cfg, logger)
	if err != nil {
		report, err = aborted(startedAt, "start browser", err)
		sink.Report(report.Summary())
		return report, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close browser session", zap.Error(cerr))
		}
	}()

	orch := pipeline.NewOrchestrator(st, session, pipeline.Options{
		YesToken:  cfg.YesToken,
		Logger:    logger,
		Status:    sink,
		OnOutcome: c.recordOutcome(r.id, logger),
	})
	r.attach(orch)

	return orch.Run(ctx, cfg.Credentials)
}

// recordOutcome journals outcome events. Journal failures never stop a run.
func (c *Controller) recordOutcome(runID uuid.UUID, logger *zap.Logger) pipeline.OutcomeCallback {
	return func(ctx context.Context, ev pipeline.OutcomeEvent) {
		in := journal.OutcomeInput{
			Row:          ev.Row,
			Name:         ev.Name,
			Category:     string(ev.Result.Category.Kind),
			Outcome:      string(ev.Result.Outcome),
			Units:        ev.Result.Units,
			UnitsApplied: ev.Result.UnitsApplied,
			Detail:       ev.Result.Detail,
		}
		if ev.Result.Err != nil {
			in.Error = ev.Result.Err.Error()
		}
		// The outcome happened in the portal even if the run is now being cancelled.
		if err := c.journal.RecordOutcome(context.WithoutCancel(ctx), runID, in); err != nil {
			logger.Warn("failed to journal outcome", zap.Int("row", ev.Row), zap.Error(err))
		}
	}
}

// finalize stores the terminal state and sends the notification.
func (c *Controller) finalize(r *Run, report *pipeline.Report, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.journal.FinishRun(ctx, r.id, report.State, report.Summary()); err != nil {
		logger.Warn("failed to journal run result", zap.Error(err))
	}

	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, Summarize(r.id, report)); err != nil {
		logger.Warn("failed to send notification", zap.Error(err))
	}
}

// aborted builds the report of a run that stopped before the orchestrator started.
func aborted(startedAt time.Time, stage string, cause error) (*pipeline.Report, error) {
	report := &pipeline.Report{
		State:      types.RunStateAborted,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Err:        cause.Error(),
	}
	return report, &pipeline.AbortError{Stage: stage, Cause: cause}
}

// Summarize turns a report into a terminal notification.
func Summarize(runID uuid.UUID, report *pipeline.Report) notify.Summary {
	lines := []string{
		fmt.Sprintf("Rows: %d (%d without a name)", report.Rows, report.RowsSkipped),
		fmt.Sprintf("Applied: %d", report.Applied),
		fmt.Sprintf("Failed: %d", report.Failed),
		fmt.Sprintf("Invalid: %d", report.Invalid),
		fmt.Sprintf("Transactions: %d", report.Transactions),
	}
	if !report.FinishedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Duration: %s", report.FinishedAt.Sub(report.StartedAt).Round(time.Second)))
	}
	return notify.Summary{
		RunID:    runID.String(),
		State:    report.State,
		Title:    report.Summary(),
		Lines:    lines,
		Warnings: report.Warnings,
	}
}
