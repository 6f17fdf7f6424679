package types

import (
	"errors"
	"fmt"
)

// ErrorClass categorizes a task or provider failure. The class drives two
// decisions downstream: whether the retry manager schedules another attempt,
// and whether the rate limiters treat the failure as a quota signal.
type ErrorClass string

const (
	ErrorClassInternal      ErrorClass = "INTERNAL_ERROR"
	ErrorClassBusiness      ErrorClass = "BUSINESS_ERROR"
	ErrorClassInput         ErrorClass = "INPUT_ERROR"
	ErrorClassNotFound      ErrorClass = "NOT_FOUND"
	ErrorClassPermission    ErrorClass = "PERMISSION_ERROR"
	ErrorClassTimeout       ErrorClass = "TIMEOUT"
	ErrorClassCancelled     ErrorClass = "CANCELLED"
	ErrorClassRemoteService ErrorClass = "REMOTE_SERVICE_ERROR"
	ErrorClassAIModel       ErrorClass = "AI_MODEL_ERROR"
	ErrorClassAIQuota       ErrorClass = "AI_QUOTA_EXHAUSTED"
	ErrorClassUnknown       ErrorClass = "UNKNOWN"
)

// Retryable reports whether failures of this class should be retried.
// UNKNOWN is retryable on purpose: better to retry than to silently drop
// work.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassTimeout, ErrorClassRemoteService, ErrorClassAIModel, ErrorClassAIQuota, ErrorClassUnknown:
		return true
	}
	return false
}

// Quota reports whether this class signals the provider's hard usage limit
// has been hit, as opposed to a transient network or server error.
func (c ErrorClass) Quota() bool {
	return c == ErrorClassAIQuota
}

// ErrorInfo is the structured failure detail stored on a task record for
// FAILED, DEAD_LETTER and RETRYING states.
type ErrorInfo struct {
	Message string     `json:"message"`
	Class   ErrorClass `json:"class"`
	// Stack holds a trimmed stack trace; populated outside production only.
	Stack string `json:"stack,omitempty"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// NewErrorInfo builds an ErrorInfo from a class and message.
func NewErrorInfo(class ErrorClass, msg string) *ErrorInfo {
	return &ErrorInfo{Message: msg, Class: class}
}

// ClassOf extracts the error class from err. Provider errors and ErrorInfo
// carry their own class; anything else is UNKNOWN.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var ei *ErrorInfo
	if errors.As(err, &ei) {
		return ei.Class
	}
	var ce interface{ ErrorClass() ErrorClass }
	if errors.As(err, &ce) {
		return ce.ErrorClass()
	}
	return ErrorClassUnknown
}
