// Package apperr defines the failure taxonomy of the tree store.
//
// User-correctable failures (Conflict, AlreadyExists, NotFound,
// NotADirectory, Invalid) are produced by validation before any object is
// flushed. Internal wraps object database and encoding failures.
// SyncUnrecoverable is only ever returned by the sync reconciler.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindConflict          Kind = "CONFLICT"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindNotFound          Kind = "NOT_FOUND"
	KindNotADirectory     Kind = "NOT_A_DIRECTORY"
	KindInvalid           Kind = "INVALID"
	KindInternal          Kind = "INTERNAL"
	KindSyncUnrecoverable Kind = "SYNC_UNRECOVERABLE"
)

// Sentinels allow errors.Is(err, apperr.ErrConflict) against any *Error of
// the matching kind.
var (
	ErrConflict          = &Error{Kind: KindConflict}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNotADirectory     = &Error{Kind: KindNotADirectory}
	ErrInvalid           = &Error{Kind: KindInvalid}
	ErrInternal          = &Error{Kind: KindInternal}
	ErrSyncUnrecoverable = &Error{Kind: KindSyncUnrecoverable}
)

type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the cause unless the cause carries a kind of its own. The
// outermost kind then decides errors.Is against the sentinels, so an
// Internal failure caused by a missing object never matches ErrNotFound.
func (e *Error) Unwrap() error {
	var inner *Error
	if errors.As(e.Err, &inner) {
		return nil
	}
	return e.Err
}

// Is matches on kind so sentinels compare equal to any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserCorrectable reports whether the caller can fix the failure by
// refetching state or changing input.
func (k Kind) UserCorrectable() bool {
	switch k {
	case KindConflict, KindAlreadyExists, KindNotFound, KindNotADirectory, KindInvalid:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Conflict(path, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Path: path, Message: fmt.Sprintf(format, args...)}
}

func AlreadyExists(path string) *Error {
	return &Error{Kind: KindAlreadyExists, Path: path, Message: "entry already exists"}
}

func NotFound(path string) *Error {
	return &Error{Kind: KindNotFound, Path: path, Message: "entry not found"}
}

func NotADirectory(path string) *Error {
	return &Error{Kind: KindNotADirectory, Path: path, Message: "entry is not a directory"}
}

func Invalid(path, format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Path: path, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a lower level failure. Errors that already carry a kind are
// returned unchanged so validation failures are never masked.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

func SyncUnrecoverable(format string, args ...any) *Error {
	return &Error{Kind: KindSyncUnrecoverable, Message: fmt.Sprintf(format, args...)}
}

// WithOp returns a copy of err annotated with the operation name.
func WithOp(op string, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(op, err)
	}
	if e.Op != "" {
		return err
	}
	c := *e
	c.Op = op
	return &c
}
