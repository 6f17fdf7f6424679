package ratelimit

import (
	"fmt"

	"github.com/fableworks/taskcore/pkg/types"
)

// Strategy names selectable from provider configuration.
const (
	StrategyConservative = "conservative"
	StrategyStandard     = "standard"
	StrategyAggressive   = "aggressive"
	StrategyAdaptive     = "adaptive"
)

// Key identifies one limiter bucket: outbound calls are throttled per
// provider, model and user.
type Key struct {
	Provider string
	Model    string
	UserID   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Provider, k.Model, k.UserID)
}

// Config holds the effective admission settings for one key, resolved by a
// ConfigSource before the strategy is built.
type Config struct {
	// Strategy selects the admission algorithm.
	Strategy string
	// Rate is the steady-state permits per second.
	Rate float64
	// Burst is the bucket capacity.
	Burst int
	// DailyLimit caps total grants per calendar day; 0 disables the cap.
	// Consumed by the conservative strategy.
	DailyLimit int
	// SafetyBuffer reserves permits under the daily limit that are never
	// handed out. Consumed by the conservative strategy.
	SafetyBuffer int
}

// ConfigSource resolves effective limiter settings for a key. Backed by the
// provider configuration store; the limiter never persists its own state.
type ConfigSource interface {
	Effective(key Key) Config
}

// Strategy is the admission control contract shared by all four
// implementations. A denied acquisition is a normal outcome, not an error:
// callers translate it into a retryable task failure.
//
// Implementations are per-key token buckets refilled by elapsed wall-clock
// time. Acquire-check-consume is atomic under a per-key lock.
type Strategy interface {
	// TryAcquire attempts to take one permit. Never blocks.
	TryAcquire(requestID string) bool

	// RecordSuccess feeds a successful provider call back into the
	// strategy.
	RecordSuccess(requestID string)

	// RecordError feeds a failed provider call back into the strategy.
	// Quota-class errors trigger the aggressive cut paths.
	RecordError(class types.ErrorClass, requestID string)

	// AvailablePermits reports the tokens currently in the bucket.
	AvailablePermits() float64

	// CurrentRate reports the effective refill rate in permits per second.
	CurrentRate() float64

	// Reset restores the strategy to its freshly-configured state.
	Reset()

	// Name returns the strategy name for logging and metrics.
	Name() string
}

// New builds the strategy selected by cfg. Unknown names fall back to the
// standard token bucket.
func New(cfg Config) Strategy {
	switch cfg.Strategy {
	case StrategyConservative:
		return NewConservative(cfg)
	case StrategyAggressive:
		return NewAggressive(cfg)
	case StrategyAdaptive:
		return NewAdaptive(cfg)
	default:
		return NewStandard(cfg)
	}
}
