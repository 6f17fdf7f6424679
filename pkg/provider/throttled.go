package provider

import (
	"context"

	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/ratelimit"
	"github.com/fableworks/taskcore/pkg/types"
)

// Throttled wraps a Client with admission control: every call first asks the
// rate limiter for a permit and feeds the call's outcome back into the
// strategy. Executables use this wrapper so limiter bookkeeping can't be
// forgotten at a call site.
type Throttled struct {
	client  Client
	limiter *ratelimit.Manager
}

// NewThrottled wraps client with the limiter manager.
func NewThrottled(client Client, limiter *ratelimit.Manager) *Throttled {
	return &Throttled{client: client, limiter: limiter}
}

// Generate acquires a permit, performs the call and records the result.
// A denied permit returns a typed REMOTE_SERVICE_ERROR: retryable, so the
// executor schedules the task again after backoff instead of failing it.
func (t *Throttled) Generate(ctx context.Context, req Request) (*Response, error) {
	key := ratelimit.Key{Provider: req.Provider, Model: req.Model, UserID: req.UserID}
	requestID := requestIDFrom(ctx)

	if !t.limiter.TryAcquire(key, requestID) {
		log.WithProvider(req.Provider, req.Model, req.UserID).Debug().
			Str("request_id", requestID).
			Msg("admission denied by rate limiter")
		return nil, NewError(req.Provider, req.Model, types.ErrorClassRemoteService,
			"rate limit exceeded, request denied admission")
	}

	resp, err := t.client.Generate(ctx, req)
	if err != nil {
		t.limiter.RecordError(key, types.ClassOf(err), requestID)
		return nil, err
	}
	t.limiter.RecordSuccess(key, requestID)
	return resp, nil
}

type ctxKey int

const requestIDKey ctxKey = 0

// WithRequestID tags ctx with the logical request id used for limiter and
// retry bookkeeping.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
