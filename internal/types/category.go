package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind identifies one of the reward/penalty fields of a record.
type Kind string

const (
	KindActivity        Kind = "activity"
	KindPenalty         Kind = "penalty"
	KindHomework        Kind = "homework"
	KindBirthday        Kind = "birthday"
	KindNoSkipBonus     Kind = "no_skip_bonus"
	KindNoBehaviorBonus Kind = "no_behavior_bonus"
)

// Mode is the unit-count rule of a category.
type Mode int

const (
	// ModeRepeatedCredit applies floor(value/UnitSize) credit transactions.
	ModeRepeatedCredit Mode = iota
	// ModeSingleCredit applies one credit transaction for any positive value.
	ModeSingleCredit
	// ModeDebit applies one debit transaction of the exact value.
	ModeDebit
	// ModeFlagCredit applies one credit transaction when the cell equals the yes token.
	ModeFlagCredit
)

// Reason is the index of a cause in the portal's transaction form.
type Reason int

const (
	ReasonActivity        Reason = 4
	ReasonHomework        Reason = 5
	ReasonBirthday        Reason = 6
	ReasonNoSkipBonus     Reason = 7
	ReasonNoBehaviorBonus Reason = 8
)

// UnitSize is the number of activity points per credit transaction.
const UnitSize = 5

// DefaultYesToken marks a flag cell as set.
const DefaultYesToken = "да"

// PenaltyNote is the comment attached to every debit transaction.
const PenaltyNote = "Замечания по поведению"

// Category is one row of the static category table.
type Category struct {
	Kind   Kind
	Label  string
	Column string // default header label in the source sheet
	Mode   Mode
	Reason Reason
}

var categories = []Category{
	{Kind: KindActivity, Label: "activity credits", Column: "активность", Mode: ModeRepeatedCredit, Reason: ReasonActivity},
	{Kind: KindPenalty, Label: "penalty", Column: "штраф", Mode: ModeDebit},
	{Kind: KindHomework, Label: "homework credits", Column: "дз", Mode: ModeSingleCredit, Reason: ReasonHomework},
	{Kind: KindBirthday, Label: "birthday credits", Column: "др", Mode: ModeSingleCredit, Reason: ReasonBirthday},
	{Kind: KindNoSkipBonus, Label: "no-skip bonus", Column: "бонус пропуск", Mode: ModeFlagCredit, Reason: ReasonNoSkipBonus},
	{Kind: KindNoBehaviorBonus, Label: "no-behavior-remarks bonus", Column: "бонус поведение", Mode: ModeFlagCredit, Reason: ReasonNoBehaviorBonus},
}

// NameColumn is the default header label of the full-name column.
const NameColumn = "фио"

// Categories returns the category table in processing order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryByKind looks up a category by kind.
func CategoryByKind(kind Kind) (Category, bool) {
	for _, c := range categories {
		if c.Kind == kind {
			return c, true
		}
	}
	return Category{}, false
}

// Field returns the record cell this category reads and clears.
func (c Category) Field(r *Record) *Value {
	return r.Field(c.Kind)
}

// MaxUnits is the largest number of transactions one cell may call for.
const MaxUnits = 1000

// ErrTooManyUnits is returned by CheckUnits for values beyond MaxUnits.
var ErrTooManyUnits = errors.New("too many transactions")

// CheckUnits returns ErrTooManyUnits when value calls for more than MaxUnits transactions.
func (c Category) CheckUnits(value decimal.Decimal) error {
	if c.Mode != ModeRepeatedCredit || !value.IsPositive() {
		return nil
	}
	if value.Div(decimal.NewFromInt(UnitSize)).Floor().GreaterThan(decimal.NewFromInt(MaxUnits)) {
		return fmt.Errorf("%w: %s calls for more than %d", ErrTooManyUnits, value.String(), MaxUnits)
	}
	return nil
}

// Units returns the number of transactions needed for a positive value, capped at MaxUnits.
func (c Category) Units(value decimal.Decimal) int {
	if !value.IsPositive() {
		return 0
	}
	if c.Mode != ModeRepeatedCredit {
		return 1
	}
	units := value.Div(decimal.NewFromInt(UnitSize)).Floor()
	if units.GreaterThan(decimal.NewFromInt(MaxUnits)) {
		return MaxUnits
	}
	return int(units.IntPart())
}

// IsCredit reports whether the category adds to the balance.
func (c Category) IsCredit() bool {
	return c.Mode != ModeDebit
}
