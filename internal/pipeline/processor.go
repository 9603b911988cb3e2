package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/portal"
	"github.com/jonathan/credit-applier/internal/types"
)

// Outcome is the result class of processing one category of one record.
type Outcome string

const (
	// OutcomeSkipped means there was nothing to do; the cell is left as is.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeInvalid means the cell did not parse; it is left for manual correction.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeApplied means every unit was submitted; the cell may be cleared.
	OutcomeApplied Outcome = "applied"
	// OutcomeFailed means the entity or a unit could not be processed.
	OutcomeFailed Outcome = "failed"
)

// Skip details.
const (
	DetailEmpty       = "empty"
	DetailNotPositive = "not positive"
	DetailNotMarked   = "not marked"
)

// Result is the aggregate of one category of one record.
type Result struct {
	Category     types.Category
	Outcome      Outcome
	Detail       string
	Units        int  // unit transactions required
	UnitsApplied int  // unit transactions submitted before a failure
	Opened       bool // the entity profile was opened and the session must be normalised
	Err          error
}

// Fatal reports whether the failure must stop the run.
func (r Result) Fatal() bool {
	return r.Outcome == OutcomeFailed && !portal.IsRecoverable(r.Err)
}

// Processor validates one category cell and applies the unit transactions it calls for.
type Processor struct {
	applicator *Applicator
	yesToken   string
	logger     *zap.Logger
}

// NewProcessor creates a Processor. An empty yesToken uses types.DefaultYesToken.
func NewProcessor(applicator *Applicator, yesToken string, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if applicator == nil {
		applicator = NewApplicator(logger)
	}
	if strings.TrimSpace(yesToken) == "" {
		yesToken = types.DefaultYesToken
	}
	return &Processor{applicator: applicator, yesToken: yesToken, logger: logger}
}

// Process handles cat for rec. The record is not modified.
func (p *Processor) Process(ctx context.Context, s Session, rec *types.Record, cat types.Category) Result {
	res := Result{Category: cat}

	field := cat.Field(rec)
	if field == nil || field.IsNull() {
		res.Outcome, res.Detail = OutcomeSkipped, DetailEmpty
		return res
	}

	value, ok, err := p.parse(cat, *field)
	if err != nil {
		res.Outcome, res.Err = OutcomeInvalid, err
		p.logger.Warn("invalid cell", zap.Int("row", rec.Row), zap.String("name", rec.Name()), zap.Error(err))
		return res
	}
	if !ok {
		res.Outcome, res.Detail = OutcomeSkipped, DetailNotMarked
		return res
	}
	if !value.IsPositive() {
		res.Outcome, res.Detail = OutcomeSkipped, DetailNotPositive
		return res
	}

	entity, err := s.SearchEntity(ctx, rec.Name())
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("search %q: %w", rec.Name(), err)
		return res
	}
	res.Opened = true

	res.Units = cat.Units(value)
	tx := TransactionFor(cat, value)
	for i := 0; i < res.Units; i++ {
		if err := p.applicator.Apply(ctx, s, entity, tx); err != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("%s unit %d of %d: %w", cat.Kind, i+1, res.Units, err)
			return res
		}
		res.UnitsApplied++
	}

	res.Outcome = OutcomeApplied
	return res
}

// parse returns the cell value. For flag categories ok is false when the cell is not the yes token.
// A value calling for more than types.MaxUnits transactions is a parse error.
func (p *Processor) parse(cat types.Category, v types.Value) (decimal.Decimal, bool, error) {
	if cat.Mode == types.ModeFlagCredit {
		if !v.Is(p.yesToken) {
			return decimal.Zero, false, nil
		}
		return decimal.NewFromInt(1), true, nil
	}

	d, err := v.Decimal()
	if err != nil {
		return decimal.Zero, false, &ParseError{Kind: cat.Kind, Value: v.String(), Cause: err}
	}
	if err := cat.CheckUnits(d); err != nil {
		return decimal.Zero, false, &ParseError{Kind: cat.Kind, Value: v.String(), Cause: err}
	}
	return d, true, nil
}
