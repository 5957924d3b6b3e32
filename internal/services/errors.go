package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorValidation       ErrorCode = "validation"
	ErrorSnapshotCreation ErrorCode = "snapshot_creation"
	ErrorNoActiveAudit    ErrorCode = "no_active_audit"
	ErrorRemoteIO         ErrorCode = "remote_io"
	ErrorNotFound         ErrorCode = "not_found"
	ErrorForbidden        ErrorCode = "forbidden"
	ErrorConflict         ErrorCode = "conflict"
	ErrorUnauthorized     ErrorCode = "unauthorized"
)

// ServiceError is the error type every service returns to its callers.
// Cause keeps the underlying error for logs; Message is safe to show users.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Cause }

// Is matches any ServiceError carrying the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	return ok && t.Code == e.Code
}

var (
	// ErrNoActiveAudit is returned by session operations when no audit is loaded.
	ErrNoActiveAudit = &ServiceError{Code: ErrorNoActiveAudit, Message: "no audit loaded"}
	// ErrSessionClosed is returned by a session after Close.
	ErrSessionClosed = &ServiceError{Code: ErrorNoActiveAudit, Message: "session closed"}
)

func NewValidationError(msg string) error { return &ServiceError{Code: ErrorValidation, Message: msg} }
func NewNotFoundError(msg string) error   { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewForbiddenError(msg string) error  { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewConflictError(msg string) error   { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewSnapshotCreationError(cause error) error {
	return &ServiceError{Code: ErrorSnapshotCreation, Message: "snapshot creation failed", Cause: cause}
}

// NewRemoteIOError wraps a data layer failure for operation op.
func NewRemoteIOError(op string, cause error) error {
	return &ServiceError{Code: ErrorRemoteIO, Message: op + " failed", Cause: cause}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// remote passes service errors through and wraps anything else as RemoteIO.
func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsServiceError(err); ok {
		return err
	}
	return NewRemoteIOError(op, err)
}
