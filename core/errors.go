package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ErrorKind classifies domain errors so that transports can map them without
// knowing every sentinel of every package.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindInvalidState
	KindConflict
)

type domainError struct {
	kind    ErrorKind
	message string
}

// NewError returns a sentinel error of the given kind.
func NewError(kind ErrorKind, msg string) error {
	return &domainError{kind: kind, message: msg}
}

func (err *domainError) Error() string {
	return err.message
}

// KindOf returns the ErrorKind of the root cause of err.
func KindOf(err error) ErrorKind {
	if dErr, ok := errors.Cause(err).(*domainError); ok {
		return dErr.kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
