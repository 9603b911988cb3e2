package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/credit-applier/internal/portal"
	"github.com/jonathan/credit-applier/internal/types"
)

func TestTransactionFor(t *testing.T) {
	activity, _ := types.CategoryByKind(types.KindActivity)
	penalty, _ := types.CategoryByKind(types.KindPenalty)

	tx := TransactionFor(activity, decimal.NewFromInt(12))
	assert.Equal(t, Credit, tx.Direction)
	assert.Equal(t, types.ReasonActivity, tx.Reason)

	tx = TransactionFor(penalty, decimal.RequireFromString("150.5"))
	assert.Equal(t, Debit, tx.Direction)
	assert.Equal(t, types.PenaltyNote, tx.Note)
	assert.Equal(t, "150.5", tx.Amount.String())
}

func TestApplicator_Credit(t *testing.T) {
	s := newFakeSession()
	a := NewApplicator(nil)

	err := a.Apply(context.Background(), s, types.Entity{Name: "A"}, Transaction{Direction: Credit, Reason: types.ReasonBirthday})
	require.NoError(t, err)

	assert.Len(t, s.ops("form"), 1)
	assert.Equal(t, []call{{Op: "credit", Name: "A", Reason: types.ReasonBirthday}}, s.transactions())
}

func TestApplicator_Debit(t *testing.T) {
	s := newFakeSession()
	a := NewApplicator(nil)

	err := a.Apply(context.Background(), s, types.Entity{Name: "A"},
		Transaction{Direction: Debit, Note: types.PenaltyNote, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)

	assert.Equal(t, []call{{Op: "debit", Name: "A", Note: types.PenaltyNote, Amount: "50"}}, s.transactions())
}

func TestApplicator_FormMissing(t *testing.T) {
	s := newFakeSession()
	s.formErr = &portal.ElementNotFoundError{Selector: "change balance form"}

	err := NewApplicator(nil).Apply(context.Background(), s, types.Entity{Name: "A"}, Transaction{Direction: Credit})
	require.Error(t, err)
	assert.True(t, portal.IsRecoverable(err))
	assert.Empty(t, s.transactions())
}

func TestApplicator_SubmitTimeout(t *testing.T) {
	s := newFakeSession()
	s.creditErr[1] = &portal.TimeoutError{Step: "confirmation", After: time.Second}

	err := NewApplicator(nil).Apply(context.Background(), s, types.Entity{Name: "A"}, Transaction{Direction: Credit})
	require.Error(t, err)
	var timeout *portal.TimeoutError
	assert.True(t, errors.As(err, &timeout))
	assert.Contains(t, err.Error(), "submit credit")
}
