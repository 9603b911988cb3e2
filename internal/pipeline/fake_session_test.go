package pipeline

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/jonathan/credit-applier/internal/types"
)

type call struct {
	Op     string
	Name   string
	Reason types.Reason
	Note   string
	Amount string
}

// fakeSession records every portal interaction.
type fakeSession struct {
	mu    sync.Mutex
	calls []call

	loginErr  error
	navErr    error
	searchErr map[string]error
	// creditErr fails the n-th SubmitCredit call, 1-based.
	creditErr map[int]error
	formErr   error
	backErr   error
	onSearch  func(name string)

	credits int
	closed  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{searchErr: map[string]error{}, creditErr: map[int]error{}}
}

func (f *fakeSession) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSession) Login(_ context.Context, creds types.Credentials) error {
	f.record(call{Op: "login", Name: creds.Login})
	return f.loginErr
}

func (f *fakeSession) NavigateToEntityList(_ context.Context) error {
	f.record(call{Op: "list"})
	return f.navErr
}

func (f *fakeSession) SearchEntity(_ context.Context, name string) (types.Entity, error) {
	f.record(call{Op: "search", Name: name})
	if f.onSearch != nil {
		f.onSearch(name)
	}
	if err := f.searchErr[name]; err != nil {
		return types.Entity{}, err
	}
	return types.Entity{Name: name}, nil
}

func (f *fakeSession) OpenTransactionForm(_ context.Context, entity types.Entity) (types.Form, error) {
	f.record(call{Op: "form", Name: entity.Name})
	if f.formErr != nil {
		return types.Form{}, f.formErr
	}
	return types.Form{Entity: entity}, nil
}

func (f *fakeSession) SubmitCredit(_ context.Context, form types.Form, reason types.Reason) error {
	f.mu.Lock()
	f.credits++
	n := f.credits
	f.mu.Unlock()

	f.record(call{Op: "credit", Name: form.Entity.Name, Reason: reason})
	return f.creditErr[n]
}

func (f *fakeSession) SubmitDebit(_ context.Context, form types.Form, note string, amount decimal.Decimal) error {
	f.record(call{Op: "debit", Name: form.Entity.Name, Note: note, Amount: amount.String()})
	return nil
}

func (f *fakeSession) GoBackAndRefresh(_ context.Context) error {
	f.record(call{Op: "back"})
	return f.backErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// ops returns the calls of the given operation.
func (f *fakeSession) ops(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// transactions returns the submitted credits and debits.
func (f *fakeSession) transactions() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.Op == "credit" || c.Op == "debit" {
			out = append(out, c)
		}
	}
	return out
}

// statusLog collects status messages.
type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusLog) Report(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *statusLog) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}
