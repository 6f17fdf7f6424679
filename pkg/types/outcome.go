package types

import "encoding/json"

// OutcomeKind discriminates the result of one execution attempt.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeRetryableFailure OutcomeKind = "retryable_failure"
	OutcomeFatalFailure     OutcomeKind = "fatal_failure"
	OutcomeCancelled        OutcomeKind = "cancelled"
)

// Outcome is the discriminated result an executable returns instead of
// raising raw errors. The executor routes the task based on Kind alone, so
// callers never need to sniff error types.
type Outcome struct {
	Kind   OutcomeKind
	Result json.RawMessage
	Err    *ErrorInfo
}

// Succeed builds a success outcome carrying the task result.
func Succeed(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

// RetryLater builds a retryable failure outcome.
func RetryLater(class ErrorClass, msg string) Outcome {
	return Outcome{Kind: OutcomeRetryableFailure, Err: NewErrorInfo(class, msg)}
}

// Fail builds a non-retryable failure outcome.
func Fail(class ErrorClass, msg string) Outcome {
	return Outcome{Kind: OutcomeFatalFailure, Err: NewErrorInfo(class, msg)}
}

// Cancel builds a cancelled outcome.
func Cancel(msg string) Outcome {
	return Outcome{Kind: OutcomeCancelled, Err: NewErrorInfo(ErrorClassCancelled, msg)}
}

// FromError classifies err and builds the matching failure outcome:
// retryable classes map to a retryable failure, everything else is fatal.
func FromError(err error) Outcome {
	class := ClassOf(err)
	if class.Retryable() {
		return RetryLater(class, err.Error())
	}
	return Fail(class, err.Error())
}
