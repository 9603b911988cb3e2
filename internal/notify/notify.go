// Package notify delivers the terminal success or failure notification of a run.
package notify

import (
	"context"
	"errors"

	"github.com/jonathan/credit-applier/internal/status"
	"github.com/jonathan/credit-applier/internal/types"
)

// Summary is the content of a terminal notification.
type Summary struct {
	RunID    string
	State    types.RunState
	Title    string
	Lines    []string
	Warnings []string
}

// Success reports whether the run reached Finished.
func (s Summary) Success() bool {
	return s.State == types.RunStateFinished
}

// Notifier sends a terminal notification.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Console prints the summary box to a status console.
type Console struct {
	console *status.Console
}

// NewConsole creates a Console notifier.
func NewConsole(c *status.Console) *Console {
	return &Console{console: c}
}

// Notify prints s.
func (c *Console) Notify(_ context.Context, s Summary) error {
	c.console.PrintSummary(status.Summary{Title: s.Title, Lines: s.Lines, Warnings: s.Warnings})
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

// Notify calls every non-nil notifier.
func (m Multi) Notify(ctx context.Context, s Summary) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
