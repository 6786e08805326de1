package models

import (
	"errors"
	"fmt"
)

// SpecificationError reports an invalid activity specification. Field is the
// path of the offending value, e.g. "prizes[2].weight".
type SpecificationError struct {
	Field   string
	Message string
}

func (e *SpecificationError) Error() string {
	if e.Field == "" {
		return "invalid activity specification: " + e.Message
	}
	return fmt.Sprintf("invalid activity specification: %s: %s", e.Field, e.Message)
}

func specErrorf(field, format string, args ...any) *SpecificationError {
	return &SpecificationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ErrorKind classifies a rejected operation.
type ErrorKind string

const (
	KindNotActive         ErrorKind = "not_active"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindAttemptLimit      ErrorKind = "attempt_limit"
	KindWinLimit          ErrorKind = "win_limit"
	KindParticipantLimit  ErrorKind = "participant_limit"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindDuplicateName     ErrorKind = "duplicate_name"
	KindInternal          ErrorKind = "internal"
)

// OperationError is a business rule violation raised by a runtime operation.
// The operation that returns it has left the activity untouched.
type OperationError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *OperationError) Unwrap() error { return e.Err }

// NewOperationError builds an OperationError with a formatted message.
func NewOperationError(kind ErrorKind, format string, args ...any) *OperationError {
	return &OperationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an OperationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var opErr *OperationError
	return errors.As(err, &opErr) && opErr.Kind == kind
}
