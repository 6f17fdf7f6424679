package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fableworks/taskcore/pkg/types"
)

const (
	// aggressiveCutFraction is the fraction of the doubled rate kept while
	// cooling down after a quota error.
	aggressiveCutFraction = 0.3
	// aggressiveCooldown is how long the cut rate is held before successes
	// can restore it.
	aggressiveCooldown = 30 * time.Second
	// aggressiveRecoveryThreshold is how many consecutive successes after
	// the cooldown restore the full rate.
	aggressiveRecoveryThreshold = 5
)

// Aggressive doubles the configured rate and capacity for higher throughput.
// A quota-class error cuts the rate to 30% for a fixed cooldown window; the
// full rate comes back after a run of consecutive successes once the window
// has passed.
type Aggressive struct {
	mu     sync.Mutex
	cfg    Config
	bucket *rate.Limiter
	now    func() time.Time

	fullRate             float64
	reduced              bool
	cooldownUntil        time.Time
	consecutiveSuccesses int
}

// NewAggressive creates an aggressive strategy from cfg.
func NewAggressive(cfg Config) *Aggressive {
	full := cfg.Rate * 2
	return &Aggressive{
		cfg:      cfg,
		bucket:   rate.NewLimiter(rate.Limit(full), cfg.Burst*2),
		now:      time.Now,
		fullRate: full,
	}
}

func (a *Aggressive) TryAcquire(requestID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bucket.AllowN(a.now(), 1)
}

func (a *Aggressive) RecordSuccess(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.reduced {
		return
	}
	if a.now().Before(a.cooldownUntil) {
		// Successes inside the cooldown window don't count toward recovery.
		return
	}
	a.consecutiveSuccesses++
	if a.consecutiveSuccesses >= aggressiveRecoveryThreshold {
		a.bucket.SetLimitAt(a.now(), rate.Limit(a.fullRate))
		a.reduced = false
		a.consecutiveSuccesses = 0
	}
}

func (a *Aggressive) RecordError(class types.ErrorClass, requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.consecutiveSuccesses = 0
	if !class.Quota() {
		return
	}
	a.bucket.SetLimitAt(a.now(), rate.Limit(a.fullRate*aggressiveCutFraction))
	a.reduced = true
	a.cooldownUntil = a.now().Add(aggressiveCooldown)
}

func (a *Aggressive) AvailablePermits() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bucket.TokensAt(a.now())
}

func (a *Aggressive) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.bucket.Limit())
}

func (a *Aggressive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bucket = rate.NewLimiter(rate.Limit(a.fullRate), a.cfg.Burst*2)
	a.reduced = false
	a.cooldownUntil = time.Time{}
	a.consecutiveSuccesses = 0
}

func (a *Aggressive) Name() string { return StrategyAggressive }
