package strategy

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStrategy = errors.New("invalid strategy")
	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidRequest  = errors.New("invalid backtest request")
)

// ValidationError reports which field of which input was rejected.
type ValidationError struct {
	Op    error // one of the ErrInvalid sentinels
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%v: %s: %v", e.Op, e.Field, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *ValidationError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{e.Op, e.Err}
}

// Invalid builds a ValidationError with a formatted cause.
func Invalid(op error, field, format string, args ...any) error {
	return &ValidationError{Op: op, Field: field, Err: fmt.Errorf(format, args...)}
}
