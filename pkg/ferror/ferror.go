// Package ferror defines the closed set of error kinds produced by the
// core messaging and coordination primitives (wire codec, buffer, KVS,
// bootstrap tree). Callers branch on kind with errors.Is against the
// sentinels below rather than matching error strings.
package ferror

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way errno classifies a syscall failure.
type Kind string

const (
	Inval       Kind = "INVAL"
	Proto       Kind = "PROTO"
	Perm        Kind = "PERM"
	NoSpace     Kind = "NOSPACE"
	ReadOnly    Kind = "READONLY"
	Exists      Kind = "EXISTS"
	NotFound    Kind = "NOT_FOUND"
	TimedOut    Kind = "TIMEDOUT"
	IsDir       Kind = "IS_DIR"
	IsSymlink   Kind = "IS_SYMLINK"
	Unsupported Kind = "UNSUPPORTED"
	Fatal       Kind = "FATAL"
)

// Error wraps a Kind with a message and optional cause, matching the
// %w-wrapping convention used throughout the codebase.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, ferror.Sentinel(ferror.Inval)) style
// comparisons by treating an *Error with only a Kind as a sentinel.
func (e *Error) Is(target error) bool {
	k, ok := target.(*Error)
	if !ok {
		return false
	}
	return k.Kind == e.Kind && k.Msg == ""
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// sentinel returns a zero-message Error usable as an errors.Is target,
// e.g. errors.Is(err, ferror.Sentinel(ferror.NotFound)).
func Sentinel(kind Kind) *Error { return &Error{Kind: kind} }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
