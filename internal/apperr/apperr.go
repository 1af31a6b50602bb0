package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a request error
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindNotReady
)

// Error is a request error that maps onto an HTTP status
type Error struct {
	Kind    Kind
	Message string
	Code    string
	// IDField and ExistingID name the entity a conflict collided with
	IDField    string
	ExistingID string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error kind
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindNotReady:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	default:
		return 500
	}
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func NotReady(code, msg string) *Error {
	return &Error{Kind: KindNotReady, Code: code, Message: msg}
}

// Conflict reports a duplicate dependent, carrying the existing entity's id
func Conflict(code, msg, idField, existingID string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, IDField: idField, ExistingID: existingID}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "ERR_INTERNAL", Message: msg, Err: err}
}

// As extracts an *Error from err, wrapping unknown errors as internal
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
