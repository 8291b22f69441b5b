package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies update failures
type ErrorKind string

const (
	ErrNetworkFailure         ErrorKind = "NetworkFailure"
	ErrIncompatibleDependency ErrorKind = "IncompatibleDependency"
	ErrBackupFailed           ErrorKind = "BackupFailed"
	ErrApplyFailed            ErrorKind = "ApplyFailed"
	ErrRestartFailed          ErrorKind = "RestartFailed"
	ErrRollbackFailed         ErrorKind = "RollbackFailed"
	ErrRestoreFailed          ErrorKind = "RestoreFailed"
)

// UpdateError is a classified failure surfaced through the session
type UpdateError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// NewError creates a classified error wrapping err
func NewError(kind ErrorKind, err error, format string, args ...interface{}) *UpdateError {
	return &UpdateError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *UpdateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first UpdateError in err's chain, or ""
func KindOf(err error) ErrorKind {
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// AsUpdateError converts any error into an UpdateError, classifying
// unknown errors with the fallback kind
func AsUpdateError(err error, fallback ErrorKind) *UpdateError {
	if err == nil {
		return nil
	}
	var ue *UpdateError
	if errors.As(err, &ue) {
		return ue
	}
	return &UpdateError{Kind: fallback, Message: err.Error(), Err: err}
}
