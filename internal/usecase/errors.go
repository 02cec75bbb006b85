package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrorNotFound         ErrorCode = "NOT_FOUND"
	ErrorNoAvailableModel ErrorCode = "NO_AVAILABLE_MODEL"
	ErrorTimeout          ErrorCode = "TIMEOUT"
	ErrorUpstream         ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by the auth use case. Reason is a stable snake_case key
// the transport layer maps onto a user-facing message.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// dispatchFailedMessage is the only text a message sender ever sees for a
// failed dispatch.
const dispatchFailedMessage = "failed to process message"

// DispatchError is the single error type ProcessMessage returns. Its message is
// always generic; Code and Reason classify the failure for logs and metrics and
// Unwrap exposes the cause to callers in-process.
type DispatchError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return ""
	}
	return dispatchFailedMessage
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newDispatchError(code ErrorCode, reason string, err error) *DispatchError {
	return &DispatchError{Code: code, Reason: reason, Err: err}
}
