// Package apperrors holds the error taxonomy shared by the stores, the
// coordinator services and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal   Kind = "internal"
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindStock      Kind = "stock"
	KindService    Kind = "service"
	KindConflict   Kind = "conflict"
)

// Error carries a user-facing message. Err, when set, is the underlying cause
// and is never rendered to callers.
type Error struct {
	Kind    Kind
	Message string
	// Available is the remaining stock reported with KindStock errors.
	Available int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Stock reports that only available units remain.
func Stock(available int) *Error {
	return &Error{
		Kind:      KindStock,
		Message:   fmt.Sprintf("Stock insuficiente. Solo hay %d unidades disponibles", available),
		Available: available,
	}
}

func Service(msg string, err error) *Error {
	return &Error{Kind: KindService, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
