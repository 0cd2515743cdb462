// Package mderr implements the cache's error taxonomy as a tagged variant
// rather than a bare numeric enum, carrying context where useful (a stale
// handle's backend id; a conflict's owner).
//
// © 2025 mdcache authors. MIT License.
package mderr

import (
	"errors"
	"fmt"
)

// Code enumerates the kinds of error the cache core can return. Values are
// stable across versions; do not reorder.
type Code int

const (
	_ Code = iota
	NotFound
	Exists
	NotADirectory
	IsADirectory
	BadType
	IsSymlink
	AccessDenied
	PermissionDenied
	Stale
	NoSpace
	Quota
	ReadOnly
	IO
	FileBig
	NameTooLong
	BadCookie
	BadHandle
	NotSupported
	Delay
	ShareDenied
	Killed
	Dead
	StateConflict
	MallocError
	InitFailed
	Inconsistent
	HashSetError
)

var names = map[Code]string{
	NotFound:          "not_found",
	Exists:            "exists",
	NotADirectory:     "not_a_directory",
	IsADirectory:      "is_a_directory",
	BadType:           "bad_type",
	IsSymlink:         "symlink",
	AccessDenied:      "access_denied",
	PermissionDenied:  "permission_denied",
	Stale:             "stale",
	NoSpace:           "no_space",
	Quota:             "quota",
	ReadOnly:          "read_only",
	IO:                "io",
	FileBig:           "file_big",
	NameTooLong:       "name_too_long",
	BadCookie:         "bad_cookie",
	BadHandle:         "bad_handle",
	NotSupported:      "not_supported",
	Delay:             "delay",
	ShareDenied:       "share_denied",
	Killed:            "killed",
	Dead:              "dead",
	StateConflict:     "state_conflict",
	MallocError:       "malloc_error",
	InitFailed:        "init_failed",
	Inconsistent:      "inconsistent",
	HashSetError:      "hash_set_error",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Fatal reports whether the code marks an internal invariant violation
// that should never occur in correct operation — the "should not happen:
// fatal log and return" class of error.
func (c Code) Fatal() bool {
	switch c {
	case MallocError, InitFailed, Inconsistent, HashSetError:
		return true
	default:
		return false
	}
}

// Error is the concrete error value returned by mdcache operations. It
// carries the taxonomy code, an optional wrapped cause (e.g. the backend
// error that produced it), and optional free-form context used in log
// lines (a stale handle's backend id, a lock conflict's owner, ...).
type Error struct {
	Code    Code
	Cause   error
	Context string
}

// New builds an *Error with no wrapped cause.
func New(code Code, context string) *Error {
	return &Error{Code: code, Context: context}
}

// Wrap builds an *Error around an existing cause, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(code Code, cause error, context string) *Error {
	return &Error{Code: code, Cause: cause, Context: context}
}

func (e *Error) Error() string {
	if e.Context == "" {
		if e.Cause != nil {
			return fmt.Sprintf("mdcache: %s: %v", e.Code, e.Cause)
		}
		return fmt.Sprintf("mdcache: %s", e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("mdcache: %s (%s): %v", e.Code, e.Context, e.Cause)
	}
	return fmt.Sprintf("mdcache: %s (%s)", e.Code, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, target) match any *Error target carrying the same
// Code, whatever its cause or context (e.g. target = mderr.New(mderr.NotFound,
// "")); see CodeOf for the common extraction pattern instead.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the Code carried by err, if any, and reports whether one
// was found. Non-mdcache errors (e.g. a raw backend I/O error that was
// never wrapped) report (0, false).
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// Of reports whether err carries the given Code.
func Of(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
