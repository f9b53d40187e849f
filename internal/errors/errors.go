// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrNoDataAvailable         = errors.New("no data available")
	ErrSourceUnavailable       = errors.New("quote source unavailable")
	ErrSymbolNotFound          = errors.New("symbol not found")
	ErrRateLimited             = errors.New("rate limited")
	ErrTimeout                 = errors.New("operation timed out")
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	ErrConfigInvalid           = errors.New("invalid configuration")
	ErrHolidayTableUnavailable = errors.New("holiday table unavailable")
	ErrDispatchFailed          = errors.New("notification dispatch failed")
	ErrDatabaseError           = errors.New("database error")
	ErrMalformedQuote          = errors.New("malformed quote payload")
)

// SourceError represents a failure of a single quote source.
type SourceError struct {
	Source string
	Symbol string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s [%s]: %v", e.Source, e.Symbol, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError.
func NewSourceError(source, symbol string, err error) *SourceError {
	return &SourceError{
		Source: source,
		Symbol: symbol,
		Err:    err,
	}
}

// FetchError is returned when every configured source failed for a symbol.
// It matches ErrNoDataAvailable with errors.Is.
type FetchError struct {
	Symbol   string
	Attempts []*SourceError
}

func (e *FetchError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no data available for %s: no sources configured", e.Symbol)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	return fmt.Sprintf("no data available for %s: %s", e.Symbol, strings.Join(parts, "; "))
}

func (e *FetchError) Is(target error) bool {
	return target == ErrNoDataAvailable
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DispatchError represents a failed delivery on one notification channel.
type DispatchError struct {
	Channel string
	Symbol  string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch [%s] %s: %v", e.Channel, e.Symbol, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatchFailed
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(channel, symbol string, err error) *DispatchError {
	return &DispatchError{
		Channel: channel,
		Symbol:  symbol,
		Err:     err,
	}
}

// WrapDatabase annotates a storage failure with op. The result matches both
// ErrDatabaseError and err.
func WrapDatabase(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDatabaseError, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
