// Package domainerr classifies failures of the access-control packages so
// that callers can decide what to block, what to show and what to log.
package domainerr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures across the access-control packages
type ErrorKind string

const (
	KindUnauthorized  ErrorKind = "unauthorized"
	KindNotFound      ErrorKind = "not_found"
	KindAlreadyExists ErrorKind = "already_exists"
	KindInvalid       ErrorKind = "invalid"
	KindUnknownRole   ErrorKind = "unknown_role"
	KindStore         ErrorKind = "store"
	KindAuditWrite    ErrorKind = "audit_write"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid request")
	ErrUnknownRole   = errors.New("unknown role")
	ErrStore         = errors.New("store failure")
	ErrAuditWrite    = errors.New("audit write failure")
)

var sentinels = map[ErrorKind]error{
	KindUnauthorized:  ErrUnauthorized,
	KindNotFound:      ErrNotFound,
	KindAlreadyExists: ErrAlreadyExists,
	KindInvalid:       ErrInvalid,
	KindUnknownRole:   ErrUnknownRole,
	KindStore:         ErrStore,
	KindAuditWrite:    ErrAuditWrite,
}

// Error is a classified failure. Message is safe to show to end users for
// the user-visible kinds; Err carries the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}

// Unauthorized builds a KindUnauthorized error
func Unauthorized(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error
func NotFound(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists builds a KindAlreadyExists error
func AlreadyExists(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindAlreadyExists, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Invalid builds a KindInvalid (validation) error
func Invalid(op, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalid, Op: op, Message: fmt.Sprintf(format, args...)}
}

// StoreFailure wraps a backend error. Already classified errors pass
// through unchanged so that NotFound from a store stays NotFound.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: KindStore, Op: op, Err: err}
}

// AuditWriteFailure wraps a failed audit append
func AuditWriteFailure(op string, err error) *Error {
	return &Error{Kind: KindAuditWrite, Op: op, Err: err}
}

// KindOf returns the classification of err, or "" when it carries none
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}

// UserVisible reports whether err may be shown to the end user as an
// actionable message.
func UserVisible(err error) bool {
	switch KindOf(err) {
	case KindUnauthorized, KindNotFound, KindInvalid, KindUnknownRole, KindAlreadyExists:
		return true
	default:
		return false
	}
}

// UserMessage returns the end-user message for err. Store and unclassified
// failures are replaced by a generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if !UserVisible(err) {
		return "the request could not be completed, please retry"
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	return sentinels[KindOf(err)].Error()
}
