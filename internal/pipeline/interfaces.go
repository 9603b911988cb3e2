// Package pipeline walks a record set and applies every pending credit and debit
// through a portal session, checkpointing the store after each applied category.
package pipeline

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jonathan/credit-applier/internal/types"
)

// Session is an authenticated, stateful connection to the portal.
// Calls are strictly sequential; implementations need not be safe for concurrent use.
type Session interface {
	Login(ctx context.Context, creds types.Credentials) error
	NavigateToEntityList(ctx context.Context) error
	SearchEntity(ctx context.Context, name string) (types.Entity, error)
	OpenTransactionForm(ctx context.Context, entity types.Entity) (types.Form, error)
	SubmitCredit(ctx context.Context, form types.Form, reason types.Reason) error
	SubmitDebit(ctx context.Context, form types.Form, note string, amount decimal.Decimal) error
	GoBackAndRefresh(ctx context.Context) error
	Close() error
}

// RecordStore loads a record snapshot and overwrites the backing sheet with a full record set.
type RecordStore interface {
	Load(ctx context.Context) ([]*types.Record, error)
	Persist(ctx context.Context, records []*types.Record) error
}

// StatusSink receives one-way progress messages. Report must not block.
type StatusSink interface {
	Report(message string)
}

type nopSink struct{}

func (nopSink) Report(string) {}
