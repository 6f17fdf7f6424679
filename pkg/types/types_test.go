package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminals := []TaskStatus{
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		StatusDeadLetter,
		StatusCompletedWithErrors,
	}
	all := []TaskStatus{
		StatusQueued, StatusRunning, StatusCompleted, StatusFailed,
		StatusRetrying, StatusCancelled, StatusDeadLetter, StatusCompletedWithErrors,
	}

	for _, from := range terminals {
		assert.True(t, from.Terminal(), "%s should be terminal", from)
		for _, to := range all {
			assert.False(t, CanTransition(from, to),
				"terminal state %s must not transition to %s", from, to)
		}
	}
}

func TestTransitionMatrix(t *testing.T) {
	tests := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusCompletedWithErrors, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusRetrying, true},
		{StatusRunning, StatusCancelled, true},
		{StatusRunning, StatusDeadLetter, true},
		{StatusRunning, StatusQueued, false},
		{StatusRetrying, StatusQueued, true},
		{StatusRetrying, StatusRunning, false},
		{StatusRetrying, StatusCancelled, true},
		{StatusRetrying, StatusDeadLetter, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRetryingIsTheOnlyBackwardEdge(t *testing.T) {
	all := []TaskStatus{
		StatusQueued, StatusRunning, StatusCompleted, StatusFailed,
		StatusRetrying, StatusCancelled, StatusDeadLetter, StatusCompletedWithErrors,
	}

	for _, from := range all {
		if from == StatusRetrying {
			continue
		}
		assert.False(t, CanTransition(from, StatusQueued),
			"%s must not re-enter QUEUED", from)
	}
	assert.True(t, CanTransition(StatusRetrying, StatusQueued))
}

func TestErrorClassRetryable(t *testing.T) {
	retryable := []ErrorClass{
		ErrorClassTimeout, ErrorClassRemoteService,
		ErrorClassAIModel, ErrorClassAIQuota, ErrorClassUnknown,
	}
	fatal := []ErrorClass{
		ErrorClassInternal, ErrorClassBusiness, ErrorClassInput,
		ErrorClassNotFound, ErrorClassPermission, ErrorClassCancelled,
	}

	for _, c := range retryable {
		assert.True(t, c.Retryable(), "%s should be retryable", c)
	}
	for _, c := range fatal {
		assert.False(t, c.Retryable(), "%s should not be retryable", c)
	}
}

func TestQuotaClass(t *testing.T) {
	assert.True(t, ErrorClassAIQuota.Quota())
	assert.False(t, ErrorClassAIModel.Quota())
	assert.False(t, ErrorClassTimeout.Quota())
}

type classedError struct{ class ErrorClass }

func (e *classedError) Error() string          { return "classed" }
func (e *classedError) ErrorClass() ErrorClass { return e.class }

func TestClassOf(t *testing.T) {
	assert.Equal(t, ErrorClassAIQuota, ClassOf(NewErrorInfo(ErrorClassAIQuota, "quota gone")))
	assert.Equal(t, ErrorClassTimeout, ClassOf(&classedError{class: ErrorClassTimeout}))

	wrapped := fmt.Errorf("call failed: %w", &classedError{class: ErrorClassAIModel})
	assert.Equal(t, ErrorClassAIModel, ClassOf(wrapped))

	assert.Equal(t, ErrorClassUnknown, ClassOf(errors.New("something else")))
	assert.Equal(t, ErrorClass(""), ClassOf(nil))
}

func TestOutcomeFromError(t *testing.T) {
	retryable := FromError(&classedError{class: ErrorClassRemoteService})
	assert.Equal(t, OutcomeRetryableFailure, retryable.Kind)
	assert.Equal(t, ErrorClassRemoteService, retryable.Err.Class)

	fatal := FromError(&classedError{class: ErrorClassInput})
	assert.Equal(t, OutcomeFatalFailure, fatal.Kind)
	assert.Equal(t, ErrorClassInput, fatal.Err.Class)
}

func TestTaskRecordClone(t *testing.T) {
	rec := &TaskRecord{
		ID:             "t1",
		Status:         StatusRunning,
		SubTaskSummary: map[TaskStatus]int{StatusQueued: 2},
		Version:        3,
	}
	cp := rec.Clone()

	cp.SubTaskSummary[StatusQueued] = 99
	cp.Status = StatusCompleted

	assert.Equal(t, 2, rec.SubTaskSummary[StatusQueued])
	assert.Equal(t, StatusRunning, rec.Status)
}
