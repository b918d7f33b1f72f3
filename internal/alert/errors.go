package alert

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("alert not found")
	ErrInvalidPayload = errors.New("invalid alert payload")

	// Collaborator failures. They wrap the underlying error so both the
	// class and the cause are reachable through errors.Is/As.
	ErrStore  = errors.New("alert store failure")
	ErrTimer  = errors.New("alert timer failure")
	ErrNotify = errors.New("notification failure")
)

// ValidationError names the first payload field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %q %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFound reports a missing (or soft-deleted) record.
func NotFound(id int64) error { return fmt.Errorf("%w: id=%d", ErrNotFound, id) }

// StoreFailure classifies err as a store failure. NotFound passes through.
func StoreFailure(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// TimerFailure classifies err as a timer failure.
func TimerFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTimer, op, err)
}

// NotifyFailure classifies err as a notification failure.
func NotifyFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrNotify, op, err)
}
