package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so wrapped sentinels
// still satisfy errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrProviderNotConfigured = &AppError{Code: "LLM_001", Message: "no LLM provider configured"}
	ErrProviderUnavailable   = &AppError{Code: "LLM_002", Message: "LLM provider unavailable"}
	ErrRateLimited           = &AppError{Code: "LLM_003", Message: "rate limit exceeded"}
	ErrCircuitOpen           = &AppError{Code: "LLM_004", Message: "LLM circuit breaker open"}
	ErrEmptyCompletion       = &AppError{Code: "LLM_005", Message: "LLM returned no choices"}

	ErrMemoryCorrupted      = &AppError{Code: "MEMORY_002", Message: "memory corrupted"}
	ErrMemoryBackendUnknown = &AppError{Code: "MEMORY_003", Message: "unknown memory backend"}

	ErrChannelNotConfigured = &AppError{Code: "CHAN_001", Message: "channel not configured"}
	ErrChannelUnknown       = &AppError{Code: "CHAN_003", Message: "unknown platform"}

	ErrInputRejected = &AppError{Code: "INPUT_001", Message: "input rejected"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithCause returns a copy of sentinel carrying cause.
func WithCause(sentinel *AppError, cause error) *AppError {
	return &AppError{
		Code:    sentinel.Code,
		Message: sentinel.Message,
		Cause:   cause,
	}
}
