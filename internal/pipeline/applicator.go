package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jonathan/credit-applier/internal/types"
)

// Direction is the sign of a transaction.
type Direction int

const (
	Credit Direction = iota
	Debit
)

func (d Direction) String() string {
	if d == Debit {
		return "debit"
	}
	return "credit"
}

// Transaction is one unit transaction submitted through the portal form.
type Transaction struct {
	Direction Direction
	Reason    types.Reason    // credits only
	Note      string          // debits only
	Amount    decimal.Decimal // debits only
}

// TransactionFor builds the unit transaction of a category for a parsed cell value.
func TransactionFor(cat types.Category, value decimal.Decimal) Transaction {
	if cat.IsCredit() {
		return Transaction{Direction: Credit, Reason: cat.Reason}
	}
	return Transaction{Direction: Debit, Note: types.PenaltyNote, Amount: value}
}

// Applicator drives one transaction through the open entity profile.
type Applicator struct {
	logger *zap.Logger
}

// NewApplicator creates an Applicator. A nil logger disables logging.
func NewApplicator(logger *zap.Logger) *Applicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applicator{logger: logger}
}

// Apply opens the transaction form of entity and submits tx once.
// Nothing is rolled back on failure.
func (a *Applicator) Apply(ctx context.Context, s Session, entity types.Entity, tx Transaction) error {
	form, err := s.OpenTransactionForm(ctx, entity)
	if err != nil {
		return fmt.Errorf("open transaction form: %w", err)
	}

	switch tx.Direction {
	case Credit:
		err = s.SubmitCredit(ctx, form, tx.Reason)
	case Debit:
		err = s.SubmitDebit(ctx, form, tx.Note, tx.Amount)
	default:
		return fmt.Errorf("unknown transaction direction %d", tx.Direction)
	}
	if err != nil {
		return fmt.Errorf("submit %s: %w", tx.Direction, err)
	}

	a.logger.Debug("transaction applied",
		zap.String("entity", entity.Name),
		zap.Stringer("direction", tx.Direction),
		zap.Int("reason", int(tx.Reason)),
		zap.String("amount", tx.Amount.String()),
	)
	return nil
}
