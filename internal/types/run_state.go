package types

// RunState is the state of one pipeline run.
type RunState string

const (
	RunStateIdle       RunState = "idle"
	RunStateLoggedIn   RunState = "logged_in"
	RunStateProcessing RunState = "processing"
	RunStateFinished   RunState = "finished"
	RunStateAborted    RunState = "aborted"
)

// Terminal reports whether no further transitions can happen.
func (s RunState) Terminal() bool {
	return s == RunStateFinished || s == RunStateAborted
}
