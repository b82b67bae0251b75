package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a reconciliation failure for the caller.
type Kind string

const (
	KindInvalidAction     Kind = "InvalidAction"
	KindInvalidEvent      Kind = "InvalidEvent"
	KindNotFound          Kind = "NotFound"
	KindLookupError       Kind = "LookupError"
	KindWriteError        Kind = "WriteError"
	KindNotificationError Kind = "NotificationError"
	KindInternal          Kind = "Internal"
)

// Error carries a Kind through wrapping layers.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns KindInternal for errors that never passed through NewError.
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

// IsKind reports whether err carries kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
