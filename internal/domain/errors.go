package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed construction input. Use errors.Is against it;
	// concrete failures are *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrBusinessRule is the family every business-rule violation belongs to.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
)

// Business-rule violations. These are expected outcomes, not system failures.
var (
	ErrInsufficientCredit = ruleViolation("insufficient credit")
	ErrSessionFull        = ruleViolation("session is full")
	ErrWaitlistIneligible = ruleViolation("member tier cannot join waitlists")
	ErrNotCancellable     = ruleViolation("booking cannot be cancelled")
	ErrDuplicateBooking   = ruleViolation("member already holds a place in this session")
)

type ruleError struct{ msg string }

func ruleViolation(msg string) error { return &ruleError{msg: msg} }

func (e *ruleError) Error() string { return e.msg }

func (e *ruleError) Is(target error) bool { return target == ErrBusinessRule }

// ValidationError reports a rejected input value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound returns a *NotFoundError for kind/id.
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}
