// Package status carries one-way progress messages from a run to whoever is watching it.
// Every Sink is fire-and-forget: Report never blocks the caller for long and never fails.
package status

// Sink receives progress messages.
type Sink interface {
	Report(message string)
}

// Func adapts a function to a Sink.
type Func func(message string)

// Report calls f.
func (f Func) Report(message string) {
	f(message)
}

// Discard drops every message.
var Discard Sink = Func(func(string) {})

// Multi fans a message out to several sinks in order.
type Multi []Sink

// Report forwards message to every non-nil sink.
func (m Multi) Report(message string) {
	for _, s := range m {
		if s != nil {
			s.Report(message)
		}
	}
}
