package rotation

import (
	"errors"
	"fmt"
)

// Sentinel errors for the rotation core.
//
// Every error returned by this package (and by the orchestrator built on it) matches exactly one
// of these with errors.Is. Callers decide on retry behaviour from the kind alone:
//   - ErrOptimisticConflict: re-read and retry
//   - ErrStorageUnavailable: retry a bounded number of times, then surface
//   - ErrValidation, ErrInvariantViolation: never retry
var (
	// ErrValidation is returned for malformed input (unknown position id, bad key, missing field).
	ErrValidation = errors.New("validation error")

	// ErrOptimisticConflict is returned when a guarded write sees a different stored revision.
	ErrOptimisticConflict = errors.New("optimistic conflict")

	// ErrStorageUnavailable is returned for backing-store errors and timeouts.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvariantViolation is returned when stored data breaks a state invariant.
	ErrInvariantViolation = errors.New("logic invariant violation")
)

// Error carries the taxonomy kind, the failing operation and a short user-facing message.
// The wrapped cause is kept for logs but is never part of Message().
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Message returns the short message without storage internals.
func (e *Error) Message() string {
	return e.Msg
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationf(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(op, format string, args ...any) error {
	return &Error{Kind: ErrOptimisticConflict, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func unavailable(op string, err error) error {
	return &Error{Kind: ErrStorageUnavailable, Op: op, Msg: "backing store did not respond", Err: err}
}

func invariantf(op, format string, args ...any) error {
	return &Error{Kind: ErrInvariantViolation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func isRotationError(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr)
}

// NewValidationError builds a validation error for callers outside this package.
func NewValidationError(op, format string, args ...any) error {
	return validationf(op, format, args...)
}

// NewInvariantError builds an invariant-violation error for callers outside this package.
func NewInvariantError(op, format string, args ...any) error {
	return invariantf(op, format, args...)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsOptimisticConflict returns true if err is a revision mismatch on a guarded write.
func IsOptimisticConflict(err error) bool {
	return errors.Is(err, ErrOptimisticConflict)
}

// IsStorageUnavailable returns true if err is a backing-store failure or timeout.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// KindName returns the taxonomy name shown to users for err.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrOptimisticConflict):
		return "OptimisticConflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "StorageUnavailable"
	case errors.Is(err, ErrInvariantViolation):
		return "LogicInvariantViolation"
	default:
		return "InternalError"
	}
}

// UserMessage returns a short message for err that never includes storage details.
func UserMessage(err error) string {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
