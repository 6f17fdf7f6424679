package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/ratelimit"
	"github.com/fableworks/taskcore/pkg/types"
)

func newLimiter(providers map[string]config.ProviderConfig) *ratelimit.Manager {
	return ratelimit.NewManager(ratelimit.NewStaticSource(providers))
}

func TestThrottledPassesThrough(t *testing.T) {
	client := NewThrottled(NewScripted(0), newLimiter(map[string]config.ProviderConfig{
		"openai": {Strategy: ratelimit.StrategyStandard, Rate: 100, Burst: 10},
	}))

	resp, err := client.Generate(context.Background(), Request{
		Provider: "openai", Model: "gpt-4", UserID: "alice", Prompt: "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "hello")
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestThrottledDenialIsRetryable(t *testing.T) {
	client := NewThrottled(NewScripted(0), newLimiter(map[string]config.ProviderConfig{
		"openai": {Strategy: ratelimit.StrategyStandard, Rate: 0.001, Burst: 1},
	}))

	req := Request{Provider: "openai", Model: "gpt-4", UserID: "alice", Prompt: "x"}
	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	// The bucket is empty; the denial surfaces as a retryable typed error,
	// not as a blocked call.
	_, err = client.Generate(context.Background(), req)
	require.Error(t, err)
	class := types.ClassOf(err)
	assert.Equal(t, types.ErrorClassRemoteService, class)
	assert.True(t, class.Retryable())
}

func TestThrottledFeedsErrorsBack(t *testing.T) {
	scripted := NewScripted(0)
	scripted.FailNext(types.ErrorClassAIQuota)
	limiter := newLimiter(map[string]config.ProviderConfig{
		"gemini": {Strategy: ratelimit.StrategyConservative, Rate: 100, Burst: 10, DailyLimit: 100, SafetyBuffer: 10},
	})
	client := NewThrottled(scripted, limiter)
	key := ratelimit.Key{Provider: "gemini", Model: "gemini-pro", UserID: "alice"}

	req := Request{Provider: "gemini", Model: "gemini-pro", UserID: "alice", Prompt: "x"}
	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, types.ErrorClassAIQuota, types.ClassOf(err))

	// The quota error reached the conservative strategy and collapsed its
	// remaining budget to a minimal probing reserve.
	assert.Equal(t, 1.0, limiter.AvailablePermits(key))

	// A successful probe restores the full ceiling.
	_, err = client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, limiter.AvailablePermits(key), 1.0)
}

func TestScriptedHonorsCancellation(t *testing.T) {
	scripted := NewScripted(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := scripted.Generate(ctx, Request{Provider: "p", Model: "m"})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, types.ErrorClassCancelled, types.ClassOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("generation ignored cancellation")
	}
}

func TestScriptedFailureScriptOrder(t *testing.T) {
	scripted := NewScripted(0)
	scripted.FailNext(types.ErrorClassRemoteService, types.ErrorClassAIModel)

	req := Request{Provider: "p", Model: "m", Prompt: "x"}

	_, err := scripted.Generate(context.Background(), req)
	assert.Equal(t, types.ErrorClassRemoteService, types.ClassOf(err))
	_, err = scripted.Generate(context.Background(), req)
	assert.Equal(t, types.ErrorClassAIModel, types.ClassOf(err))
	_, err = scripted.Generate(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, 3, scripted.Calls())
}

func TestErrorFormatting(t *testing.T) {
	err := NewError("openai", "gpt-4", types.ErrorClassAIQuota, "daily quota exceeded")
	assert.Contains(t, err.Error(), "openai/gpt-4")
	assert.Contains(t, err.Error(), "daily quota exceeded")
	assert.Equal(t, types.ErrorClassAIQuota, err.ErrorClass())
}
