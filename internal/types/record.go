// Package types provides type definitions for the records, categories and run states
// shared across the credit applier.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Value is the raw text of one spreadsheet cell. A blank value is null.
type Value string

// IsNull reports whether the cell is empty after trimming whitespace.
func (v Value) IsNull() bool {
	return strings.TrimSpace(string(v)) == ""
}

// Decimal parses the cell as a number. Both "12.5" and "12,5" are accepted.
func (v Value) Decimal() (decimal.Decimal, error) {
	s := strings.TrimSpace(string(v))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number: %q", string(v))
	}
	return d, nil
}

// Is reports whether the cell equals token, ignoring case and surrounding spaces.
func (v Value) Is(token string) bool {
	return strings.EqualFold(strings.TrimSpace(string(v)), strings.TrimSpace(token))
}

// String returns the raw cell text.
func (v Value) String() string {
	return string(v)
}

// Record is one row of the source table.
type Record struct {
	Row      int    `json:"row"`
	FullName string `json:"full_name"`

	Activity        Value `json:"activity_credits,omitempty"`
	Penalty         Value `json:"penalty_amount,omitempty"`
	Homework        Value `json:"homework_credits,omitempty"`
	Birthday        Value `json:"birthday_credits,omitempty"`
	NoSkipBonus     Value `json:"no_skip_bonus,omitempty"`
	NoBehaviorBonus Value `json:"no_behavior_bonus,omitempty"`

	// Extra holds cells of columns the applier does not own, keyed by column index.
	Extra map[int]string `json:"-"`
}

// HasName reports whether the record carries the join key.
func (r *Record) HasName() bool {
	return strings.TrimSpace(r.FullName) != ""
}

// Name returns the trimmed full name.
func (r *Record) Name() string {
	return strings.TrimSpace(r.FullName)
}

// Field returns a pointer to the cell owned by the given category kind.
func (r *Record) Field(kind Kind) *Value {
	switch kind {
	case KindActivity:
		return &r.Activity
	case KindPenalty:
		return &r.Penalty
	case KindHomework:
		return &r.Homework
	case KindBirthday:
		return &r.Birthday
	case KindNoSkipBonus:
		return &r.NoSkipBonus
	case KindNoBehaviorBonus:
		return &r.NoBehaviorBonus
	default:
		return nil
	}
}

// Clear nulls the cell of the given kind.
func (r *Record) Clear(kind Kind) {
	if f := r.Field(kind); f != nil {
		*f = ""
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.Extra != nil {
		c.Extra = make(map[int]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// CloneRecords deep-copies a record set.
func CloneRecords(records []*Record) []*Record {
	out := make([]*Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
