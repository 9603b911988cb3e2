package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/credit-applier/internal/runner"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNoRun indicates no run has been started since the server came up
type ErrNoRun struct{}

func (e *ErrNoRun) Error() string {
	return "no run has been started"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var validation *ErrValidation
	var noRun *ErrNoRun
	switch {
	case errors.Is(err, runner.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &noRun):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
