/*
Package provider defines the AI provider client contract and throttling.

A Client turns a Request (provider, model, user, prompt) into a
Response (content, tokens used, finish reason). The package ships two
implementations: Throttled, which decorates any client with rate-limit
admission and feedback, and Scripted, a deterministic stand-in for tests
and local development.

# Throttled

Throttled is where the rate limiter meets the provider call:

	client := provider.NewThrottled(inner, limiter)

Before each call it asks the limiter for a permit keyed by (provider,
model, user); a denial returns a retryable REMOTE_SERVICE_ERROR without
touching the provider, and the retry machinery supplies the backoff.
After each call it reports success or the error's class back to the
limiter, which is how quota errors reach the conservative and adaptive
strategies. Executables using a Throttled client get provider-aware
throttling without knowing rate limiting exists.

# Error Classification

Provider failures are returned as *Error carrying an ErrorClass, which
types.ClassOf picks up through the ErrorClass() method. A context
cancelled mid-call surfaces as CANCELLED, quota exhaustion as
AI_QUOTA_EXHAUSTED, model-side failures as AI_MODEL_ERROR.

# Request Correlation

WithRequestID stashes the per-attempt request ID in the context; clients
include it in their logs so one attempt can be traced across task,
limiter and provider records.

# Scripted

Scripted answers every request successfully after a configurable
latency, honoring context cancellation. FailNext queues error classes to
be returned, in order, by upcoming calls - enough to script a quota
storm or a flaky stretch in a test without a real provider anywhere.
*/
package provider
