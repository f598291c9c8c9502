package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds. Every failure surfaced by the gateway or the
// workflow matches exactly one of the domain kinds via errors.Is.
var (
	// ErrProjectNotFound indicates the target or parent project could not be resolved
	ErrProjectNotFound = errors.New("project not found")

	// ErrAmbiguousProject indicates a name-only lookup matched more than one project
	ErrAmbiguousProject = errors.New("multiple projects found with the same name, please specify a version")

	// ErrProjectCreation indicates an explicit project creation failed
	ErrProjectCreation = errors.New("project creation failed")

	// ErrBomSubmission indicates the BOM upload was rejected or could not be sent
	ErrBomSubmission = errors.New("BOM upload failed")

	// ErrPoll indicates the processing status of a BOM token could not be read
	ErrPoll = errors.New("polling failed")

	// ErrMetricsFetch indicates project metrics could not be read
	ErrMetricsFetch = errors.New("metrics retrieval failed")

	// ErrProjectUpdate indicates the project metadata update failed
	ErrProjectUpdate = errors.New("project update failed")

	// ErrThresholdViolation indicates a metric exceeded its configured ceiling
	ErrThresholdViolation = errors.New("threshold exceeded")

	// ErrConfiguration indicates missing or malformed task parameters
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound indicates the server answered 404
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the server rejected the API key
	ErrUnauthorized = errors.New("unauthorized")
)

// OperationError wraps a gateway failure with the operation and target it concerned.
type OperationError struct {
	Kind   error
	Op     string
	Target string
	Cause  error
}

func (e *OperationError) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s", msg, e.Op)
		if e.Target != "" {
			msg += " " + e.Target
		}
		msg += ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *OperationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Wrap builds an OperationError. It returns nil when cause is nil.
func Wrap(kind error, op, target string, cause error) error {
	if cause == nil {
		return nil
	}
	return &OperationError{Kind: kind, Op: op, Target: target, Cause: cause}
}

// StatusError is returned for any non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	text := e.Status
	if text == "" {
		text = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%d - %s", e.StatusCode, text)
}

// Is maps well-known status codes onto the generic sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// NewStatusError builds a StatusError from a status code and the reason phrase.
func NewStatusError(code int, status, body string) error {
	return &StatusError{StatusCode: code, Status: status, Body: body}
}

// ConfigurationError reports missing or malformed parameters.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationf creates a new configuration error with formatting
func NewConfigurationf(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// TransientError wraps an error to mark it as transient (retryable)
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %v", e.Cause)
	}
	return "transient error"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a new transient error
func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// NewTransientf creates a new transient error with formatting
func NewTransientf(format string, args ...interface{}) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

// IsTransient reports whether a failure could succeed if repeated later.
// Transport failures, 5xx and 429 are transient; other status errors are not.
// Nothing in this module retries on it; it only annotates logs.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	return false
}

// Re-exports so callers can import this package in place of the stdlib one.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)
