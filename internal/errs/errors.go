// Package errs holds the error type shared by every pgstudio package.
//
// Drivers and stores translate native failures into an *Error carrying an
// ErrKind. The HTTP layer picks the status code from the kind and shows only
// Message to users; the cause is kept for logs.
//
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	if errs.IsNotFound(err) { ... }
package errs

import (
	"errors"
	"fmt"
)

// ErrKind classifies a failure independently of the subsystem that raised it.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // schema, table, column, row or export missing
	ErrKindConflict                 // name already taken
	ErrKindInvalidInput             // request data rejected before or by the server
	ErrKindQueryFailed              // SQL error reported by PostgreSQL
	ErrKindPolicyViolation          // blocked by the query gate
	ErrKindConnectionFailed         // backend unreachable
	ErrKindTimeout                  // deadline exceeded or cancelled
	ErrKindPermissionDenied         // privilege or credential failure
)

var kindNames = [...]string{
	ErrKindUnknown:          "unknown",
	ErrKindNotFound:         "not_found",
	ErrKindConflict:         "conflict",
	ErrKindInvalidInput:     "invalid_input",
	ErrKindQueryFailed:      "query_failed",
	ErrKindPolicyViolation:  "policy_violation",
	ErrKindConnectionFailed: "connection_failed",
	ErrKindTimeout:          "timeout",
	ErrKindPermissionDenied: "permission_denied",
}

func (k ErrKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[ErrKindUnknown]
	}
	return kindNames[k]
}

// ParseKind is the inverse of String. Unrecognised names give ErrKindUnknown.
func ParseKind(name string) ErrKind {
	for k, n := range kindNames {
		if n == name {
			return ErrKind(k)
		}
	}
	return ErrKindUnknown
}

// MarshalText encodes the kind by name so it reads well in JSON bodies.
func (k ErrKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrKind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// Error is the error type returned across pgstudio.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind ErrKind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap keeps cause for errors.Is/As and for logs.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or
// ErrKindUnknown when there is none.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

func IsNotFound(err error) bool         { return KindOf(err) == ErrKindNotFound }
func IsConflict(err error) bool         { return KindOf(err) == ErrKindConflict }
func IsInvalidInput(err error) bool     { return KindOf(err) == ErrKindInvalidInput }
func IsQueryFailed(err error) bool      { return KindOf(err) == ErrKindQueryFailed }
func IsPolicyViolation(err error) bool  { return KindOf(err) == ErrKindPolicyViolation }
func IsTimeout(err error) bool          { return KindOf(err) == ErrKindTimeout }
func IsConnectionFailed(err error) bool { return KindOf(err) == ErrKindConnectionFailed }
func IsPermissionDenied(err error) bool { return KindOf(err) == ErrKindPermissionDenied }

// Message is the user-facing text of err: the outermost *Error's Message,
// without kind prefix or cause. Other errors give err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
