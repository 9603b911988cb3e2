// Package portal drives the member portal through a headless browser.
package portal

import (
	"errors"
	"fmt"
	"time"
)

// AuthError is returned when login does not reach an authenticated page.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// EntityNotFoundError is returned when a search does not yield exactly one visible profile.
type EntityNotFoundError struct {
	Name    string
	Matches int
	Cause   error
}

func (e *EntityNotFoundError) Error() string {
	switch {
	case e.Matches > 1:
		return fmt.Sprintf("entity %q is ambiguous: %d matches", e.Name, e.Matches)
	case e.Cause != nil:
		return fmt.Sprintf("entity %q not found: %v", e.Name, e.Cause)
	default:
		return fmt.Sprintf("entity %q not found", e.Name)
	}
}

func (e *EntityNotFoundError) Unwrap() error {
	return e.Cause
}

// ElementNotFoundError is returned when a required control is missing from the page.
type ElementNotFoundError struct {
	Selector string
	Cause    error
}

func (e *ElementNotFoundError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("element %s not found: %v", e.Selector, e.Cause)
	}
	return fmt.Sprintf("element %s not found", e.Selector)
}

func (e *ElementNotFoundError) Unwrap() error {
	return e.Cause
}

// TimeoutError is returned when a UI state transition does not happen within its bound.
type TimeoutError struct {
	Step  string
	After time.Duration
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %s", e.After, e.Step)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// SessionError is returned when the browser session itself is gone.
type SessionError struct {
	Message string
	Cause   error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("browser session error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("browser session error: %s", e.Message)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

// IsRecoverable reports whether err only affects the category in progress.
// Entity, element and timeout failures are recoverable; anything else is fatal to the run.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var notFound *EntityNotFoundError
	var element *ElementNotFoundError
	var timeout *TimeoutError
	return errors.As(err, &notFound) || errors.As(err, &element) || errors.As(err, &timeout)
}

// IsEntityNotFound reports whether err is an EntityNotFoundError.
func IsEntityNotFound(err error) bool {
	var notFound *EntityNotFoundError
	return errors.As(err, &notFound)
}
