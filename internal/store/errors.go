// Package store loads record sets from a spreadsheet and persists field-level progress back to it.
package store

import (
	"errors"
	"fmt"
)

// UnavailableError means the backing sheet could not be read or written,
// or its layout does not match the expected columns.
type UnavailableError struct {
	Op      string
	Message string
	Cause   error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store unavailable: %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("store unavailable: %s: %s", e.Op, e.Message)
}

func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// EmptyDataError means the sheet was readable but held no data rows.
type EmptyDataError struct {
	Source string
}

func (e *EmptyDataError) Error() string {
	return fmt.Sprintf("no data rows in %s", e.Source)
}

// IsUnavailable reports whether err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsEmptyData reports whether err is (or wraps) an EmptyDataError.
func IsEmptyData(err error) bool {
	var ee *EmptyDataError
	return errors.As(err, &ee)
}
