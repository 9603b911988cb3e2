package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/credit-applier/internal/portal"
	"github.com/jonathan/credit-applier/internal/types"
)

func category(t *testing.T, kind types.Kind) types.Category {
	t.Helper()
	c, ok := types.CategoryByKind(kind)
	require.True(t, ok)
	return c
}

func TestProcessor_UnitCountLaw(t *testing.T) {
	tests := []struct {
		value   types.Value
		outcome Outcome
		credits int
	}{
		{value: "0", outcome: OutcomeSkipped, credits: 0},
		{value: "4", outcome: OutcomeApplied, credits: 0},
		{value: "5", outcome: OutcomeApplied, credits: 1},
		{value: "12", outcome: OutcomeApplied, credits: 2},
		{value: "27", outcome: OutcomeApplied, credits: 5},
		{value: "27,9", outcome: OutcomeApplied, credits: 5},
	}

	for _, tt := range tests {
		t.Run(string(tt.value), func(t *testing.T) {
			s := newFakeSession()
			p := NewProcessor(nil, "", nil)
			rec := &types.Record{FullName: "A", Activity: tt.value}

			res := p.Process(context.Background(), s, rec, category(t, types.KindActivity))
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Len(t, s.ops("credit"), tt.credits)
			assert.Equal(t, tt.credits, res.UnitsApplied)
			for _, c := range s.ops("credit") {
				assert.Equal(t, types.ReasonActivity, c.Reason)
			}
		})
	}
}

func TestProcessor_NonPositiveSkip(t *testing.T) {
	for _, v := range []types.Value{"0", "-3", "-0.5"} {
		for _, kind := range []types.Kind{types.KindActivity, types.KindPenalty, types.KindHomework, types.KindBirthday} {
			s := newFakeSession()
			rec := &types.Record{FullName: "A"}
			*rec.Field(kind) = v

			res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, kind))
			assert.Equal(t, OutcomeSkipped, res.Outcome, "%s=%s", kind, v)
			assert.Equal(t, DetailNotPositive, res.Detail)
			assert.False(t, res.Opened)
			assert.Empty(t, s.calls)
			assert.Equal(t, v, *rec.Field(kind), "record is never modified")
		}
	}
}

func TestProcessor_EmptyCell(t *testing.T) {
	s := newFakeSession()
	res := NewProcessor(nil, "", nil).Process(context.Background(), s, &types.Record{FullName: "A", Homework: "  "},
		category(t, types.KindHomework))

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, DetailEmpty, res.Detail)
	assert.Empty(t, s.calls)
}

func TestProcessor_ParseFailure(t *testing.T) {
	s := newFakeSession()
	rec := &types.Record{FullName: "A", Birthday: "one"}

	res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindBirthday))
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	var parseErr *ParseError
	require.ErrorAs(t, res.Err, &parseErr)
	assert.Equal(t, types.KindBirthday, parseErr.Kind)
	assert.Equal(t, "one", parseErr.Value)
	assert.False(t, res.Fatal())
	assert.Empty(t, s.calls)
}

func TestProcessor_TooManyUnits(t *testing.T) {
	for _, v := range []types.Value{"1e20", "1e30", "92233720368547758080", "5005"} {
		t.Run(string(v), func(t *testing.T) {
			s := newFakeSession()
			rec := &types.Record{FullName: "A", Activity: v}

			res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindActivity))
			assert.Equal(t, OutcomeInvalid, res.Outcome)
			var parseErr *ParseError
			require.ErrorAs(t, res.Err, &parseErr)
			assert.ErrorIs(t, res.Err, types.ErrTooManyUnits)
			assert.Equal(t, types.KindActivity, parseErr.Kind)
			assert.False(t, res.Opened)
			assert.Zero(t, res.Units)
			assert.Empty(t, s.calls)
			assert.Equal(t, v, rec.Activity)
		})
	}
}

func TestProcessor_UnitCapIsApplied(t *testing.T) {
	s := newFakeSession()
	rec := &types.Record{FullName: "A", Activity: "5004"}

	res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindActivity))
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, types.MaxUnits, res.Units)
	assert.Len(t, s.ops("credit"), types.MaxUnits)
}

func TestProcessor_FlagCategories(t *testing.T) {
	tests := []struct {
		value   types.Value
		outcome Outcome
	}{
		{value: "да", outcome: OutcomeApplied},
		{value: " Да ", outcome: OutcomeApplied},
		{value: "нет", outcome: OutcomeSkipped},
		{value: "1", outcome: OutcomeSkipped},
	}

	for _, tt := range tests {
		s := newFakeSession()
		rec := &types.Record{FullName: "A", NoBehaviorBonus: tt.value}

		res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindNoBehaviorBonus))
		assert.Equal(t, tt.outcome, res.Outcome, string(tt.value))
		if tt.outcome == OutcomeApplied {
			assert.Equal(t, []call{{Op: "credit", Name: "A", Reason: types.ReasonNoBehaviorBonus}}, s.transactions())
		} else {
			assert.Equal(t, DetailNotMarked, res.Detail)
			assert.Empty(t, s.calls)
		}
	}
}

func TestProcessor_CustomYesToken(t *testing.T) {
	s := newFakeSession()
	rec := &types.Record{FullName: "A", NoSkipBonus: "yes"}

	res := NewProcessor(nil, "YES", nil).Process(context.Background(), s, rec, category(t, types.KindNoSkipBonus))
	assert.Equal(t, OutcomeApplied, res.Outcome)
}

func TestProcessor_PenaltyIsOneExactDebit(t *testing.T) {
	s := newFakeSession()
	rec := &types.Record{FullName: "A", Penalty: "150,5"}

	res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindPenalty))
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 1, res.Units)
	assert.Equal(t, []call{{Op: "debit", Name: "A", Note: types.PenaltyNote, Amount: "150.5"}}, s.transactions())
}

func TestProcessor_EntityNotFound(t *testing.T) {
	s := newFakeSession()
	s.searchErr["A"] = &portal.EntityNotFoundError{Name: "A"}
	rec := &types.Record{FullName: "A", Homework: "1"}

	res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindHomework))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.False(t, res.Opened)
	assert.False(t, res.Fatal())
	assert.True(t, portal.IsEntityNotFound(res.Err))
	assert.Empty(t, s.transactions())
}

func TestProcessor_ShortCircuitsOnFirstFailedUnit(t *testing.T) {
	s := newFakeSession()
	s.creditErr[3] = &portal.TimeoutError{Step: "confirmation", After: time.Second}
	rec := &types.Record{FullName: "A", Activity: "25"}

	res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindActivity))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 5, res.Units)
	assert.Equal(t, 2, res.UnitsApplied)
	assert.True(t, res.Opened)
	assert.False(t, res.Fatal())
	assert.Len(t, s.ops("credit"), 3)
	assert.Contains(t, res.Err.Error(), "unit 3 of 5")
}

func TestProcessor_SessionLossIsFatal(t *testing.T) {
	s := newFakeSession()
	s.searchErr["A"] = &portal.SessionError{Message: "tab closed"}
	rec := &types.Record{FullName: "A", Homework: "1"}

	res := NewProcessor(nil, "", nil).Process(context.Background(), s, rec, category(t, types.KindHomework))
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, res.Fatal())
}
