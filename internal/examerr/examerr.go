// Package examerr defines the error kinds surfaced by the session engine.
package examerr

import (
	"errors"
	"fmt"
)

// Kind enumerates engine error categories.
type Kind string

const (
	InvalidConfiguration Kind = "INVALID_CONFIGURATION"
	OutOfRange           Kind = "OUT_OF_RANGE"
	InvalidState         Kind = "INVALID_STATE"
	AlreadyFinished      Kind = "ALREADY_FINISHED"
	CorruptState         Kind = "CORRUPT_STATE"
	StorageUnavailable   Kind = "STORAGE_UNAVAILABLE"
	NotFound             Kind = "NOT_FOUND"
)

// Error carries a Kind plus the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is checks. Any *Error matches the sentinel of its Kind.
var (
	ErrInvalidConfiguration = &Error{Kind: InvalidConfiguration}
	ErrOutOfRange           = &Error{Kind: OutOfRange}
	ErrInvalidState         = &Error{Kind: InvalidState}
	ErrAlreadyFinished      = &Error{Kind: AlreadyFinished}
	ErrCorruptState         = &Error{Kind: CorruptState}
	ErrStorageUnavailable   = &Error{Kind: StorageUnavailable}
	ErrNotFound             = &Error{Kind: NotFound}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the bare sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// New builds an *Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
