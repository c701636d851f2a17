package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// Kind classifies failures that cross a component boundary.
type Kind string

const (
	KindRuleLoad     Kind = "rule_load"
	KindStore        Kind = "store"
	KindLinkConflict Kind = "link_conflict"
	KindLLM          Kind = "llm"
	KindOCRParse     Kind = "ocr_parse"
)

// Error is a typed failure carrying a Kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err, or "" when err is not a typed error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// InvalidInput wraps ErrInvalidInput with a field-specific message.
func InvalidInput(field, message string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, message)
}
