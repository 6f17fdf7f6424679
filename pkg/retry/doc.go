/*
Package retry decides whether and when a failed task runs again.

The Manager keeps a per-task attempt counter and two backoff tables: the
standard delay table for ordinary retryable failures and a much longer
quota table for AI_QUOTA_EXHAUSTED, where hammering the provider again
in fifteen seconds would only burn budget. Both tables cap at their last
entry rather than growing unboundedly.

# Decisions

	decision := mgr.Next(taskID, class)
	switch {
	case !class.Retryable():   // never counted, never retried
	case decision.Exhausted:   // budget spent -> DEAD_LETTER
	default:                   // retry after decision.Delay
	}

Next increments the counter for the task and returns either a delay or
exhaustion once the attempt count passes MaxAttempts. Clear resets the
counter on any terminal outcome so a future task reusing the ID starts
fresh. Counters are independent per task ID.

# Provenance

RequestID(taskID, attempt) produces the "taskID#attempt" identifier that
threads one attempt through provider calls, rate-limiter logs and task
logs. NewRedelivery packages a retry decision into the envelope the
transport carries back, so the receiving side can log exactly which
attempt of which task it is re-running and why.
*/
package retry
