package taskcast

import "fmt"

// ErrorKind discriminates the typed failure modes callers are expected to handle.
type ErrorKind int

const (
	KindTaskNotFound ErrorKind = iota
	KindInvalidTransition
	KindTaskTerminal
	KindStore
	KindForbidden
	KindUnauthenticated
	KindBadRequest
)

// Error is the typed error returned by engine operations; the HTTP layer maps Kind to a status
// code (see pkg/api/errors.go).
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, taskcast.ErrTaskNotFound) style sentinel comparisons by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Sentinel errors for errors.Is comparisons against a bare kind (no message).
var (
	ErrTaskNotFound       = &Error{Kind: KindTaskNotFound, Msg: "task not found"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Msg: "invalid transition"}
	ErrTaskTerminal       = &Error{Kind: KindTaskTerminal, Msg: "task is terminal"}
	ErrForbidden          = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Msg: "unauthenticated"}
)

// TaskNotFound builds a not-found error for the given task id.
func TaskNotFound(taskID string) error {
	return newErr(KindTaskNotFound, fmt.Sprintf("task not found: %s", taskID), nil)
}

// InvalidTransition builds an invalid-transition error.
func InvalidTransition(from, to TaskStatus) error {
	return newErr(KindInvalidTransition, fmt.Sprintf("Invalid transition: %s -> %s", from, to), nil)
}

// TaskTerminal builds a terminal-task error for a rejected publish.
func TaskTerminal(status TaskStatus) error {
	return newErr(KindTaskTerminal, fmt.Sprintf("task is terminal: %s", status), nil)
}

// StoreError wraps an underlying storage failure.
func StoreError(err error) error {
	return newErr(KindStore, "store error", err)
}

// Forbidden builds an authorization-failed error.
func Forbidden(msg string) error {
	return newErr(KindForbidden, msg, nil)
}

// Unauthenticated builds a missing/invalid credential error.
func Unauthenticated(msg string) error {
	return newErr(KindUnauthenticated, msg, nil)
}

// BadRequest builds a malformed-input error.
func BadRequest(msg string) error {
	return newErr(KindBadRequest, msg, nil)
}
