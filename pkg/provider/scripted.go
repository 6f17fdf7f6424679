package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fableworks/taskcore/pkg/types"
)

// Scripted is a deterministic in-memory Client for demos and tests. Each
// call returns canned content after an optional latency; failures are
// injected through a script of error classes consumed one call at a time.
type Scripted struct {
	mu      sync.Mutex
	latency time.Duration
	script  []types.ErrorClass
	calls   int
}

// NewScripted creates a scripted client with the given per-call latency.
func NewScripted(latency time.Duration) *Scripted {
	return &Scripted{latency: latency}
}

// FailNext queues error classes to be returned by upcoming calls, in order,
// before the client goes back to succeeding.
func (s *Scripted) FailNext(classes ...types.ErrorClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, classes...)
}

// Calls reports how many Generate calls were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Generate returns canned content, honoring latency, context cancellation
// and the failure script.
func (s *Scripted) Generate(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	s.calls++
	var fail types.ErrorClass
	if len(s.script) > 0 {
		fail = s.script[0]
		s.script = s.script[1:]
	}
	s.mu.Unlock()

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return nil, NewError(req.Provider, req.Model, types.ErrorClassCancelled, "generation cancelled")
		}
	} else if err := ctx.Err(); err != nil {
		return nil, NewError(req.Provider, req.Model, types.ErrorClassCancelled, "generation cancelled")
	}

	if fail != "" {
		return nil, NewError(req.Provider, req.Model, fail, "scripted failure")
	}

	return &Response{
		Content:      fmt.Sprintf("[%s/%s] %s", req.Provider, req.Model, req.Prompt),
		TokensUsed:   len(req.Prompt),
		FinishReason: "stop",
	}, nil
}
