// Package apperr defines the error kinds returned across the simulator's call API.
// Every failure the core reports is an *Error carrying one of these kinds; callers
// match them with errors.Is against the exported sentinels.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidAmount       Kind = "INVALID_AMOUNT"
	KindInvalidParameter    Kind = "INVALID_PARAMETER"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindInsufficientReserve Kind = "INSUFFICIENT_RESERVE"
	KindCapacityExceeded    Kind = "CAPACITY_EXCEEDED"
	KindInactiveAgent       Kind = "INACTIVE_AGENT"
	KindNotFound            Kind = "NOT_FOUND"
)

// Sentinels for errors.Is. Only the kind is compared.
var (
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrInvalidParameter    = &Error{Kind: KindInvalidParameter}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientReserve = &Error{Kind: KindInsufficientReserve}
	ErrCapacityExceeded    = &Error{Kind: KindCapacityExceeded}
	ErrInactiveAgent       = &Error{Kind: KindInactiveAgent}
	ErrNotFound            = &Error{Kind: KindNotFound}
)

type Error struct {
	Kind Kind
	Msg  string
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a kind onto the status code used by the HTTP API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidAmount, KindInvalidParameter:
		return http.StatusBadRequest
	case KindInsufficientFunds, KindInsufficientReserve, KindCapacityExceeded:
		return http.StatusConflict
	case KindInactiveAgent:
		return http.StatusGone
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
