package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fableworks/taskcore/pkg/types"
)

const (
	// adaptiveEvalInterval is how often the rate multiplier is recomputed.
	adaptiveEvalInterval = 10 * time.Second
	// adaptiveMinSamples is how many observations an evaluation needs.
	adaptiveMinSamples = 20
	// adaptiveFloor and adaptiveCeiling bound the rate multiplier.
	adaptiveFloor   = 0.1
	adaptiveCeiling = 1.5
)

// Adaptive starts at the configured rate and periodically recomputes a rate
// multiplier from the observed error ratio: sustained errors push the rate
// toward the floor, a clean window grants a modest boost up to the ceiling.
// Sample counters are halved after each evaluation so the window decays
// rather than forgetting everything at once. A quota-class error cuts the
// multiplier immediately, outside the periodic evaluation.
type Adaptive struct {
	mu     sync.Mutex
	cfg    Config
	bucket *rate.Limiter
	now    func() time.Time

	multiplier float64
	successes  int
	errors     int
	lastEval   time.Time
}

// NewAdaptive creates an adaptive strategy from cfg.
func NewAdaptive(cfg Config) *Adaptive {
	a := &Adaptive{
		cfg:        cfg,
		bucket:     rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		now:        time.Now,
		multiplier: 1.0,
	}
	a.lastEval = a.now()
	return a
}

func (a *Adaptive) TryAcquire(requestID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	a.maybeEvaluate(now)
	return a.bucket.AllowN(now, 1)
}

func (a *Adaptive) RecordSuccess(requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.successes++
}

func (a *Adaptive) RecordError(class types.ErrorClass, requestID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors++
	if class.Quota() {
		// Quota exhaustion can't wait for the next evaluation window.
		a.setMultiplier(a.multiplier * 0.5)
	}
}

// maybeEvaluate recomputes the multiplier once per interval, given enough
// samples. Caller holds the lock.
func (a *Adaptive) maybeEvaluate(now time.Time) {
	if now.Sub(a.lastEval) < adaptiveEvalInterval {
		return
	}
	total := a.successes + a.errors
	if total < adaptiveMinSamples {
		return
	}

	errRatio := float64(a.errors) / float64(total)
	switch {
	case errRatio >= 0.5:
		a.setMultiplier(a.multiplier * 0.5)
	case errRatio >= 0.2:
		a.setMultiplier(a.multiplier * 0.8)
	case errRatio <= 0.05:
		a.setMultiplier(a.multiplier * 1.1)
	}

	// Halve rather than zero the counters to smooth consecutive windows.
	a.successes /= 2
	a.errors /= 2
	a.lastEval = now
}

// setMultiplier clamps and applies the multiplier. Caller holds the lock.
func (a *Adaptive) setMultiplier(m float64) {
	if m < adaptiveFloor {
		m = adaptiveFloor
	}
	if m > adaptiveCeiling {
		m = adaptiveCeiling
	}
	a.multiplier = m
	a.bucket.SetLimitAt(a.now(), rate.Limit(a.cfg.Rate*m))
}

func (a *Adaptive) AvailablePermits() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bucket.TokensAt(a.now())
}

func (a *Adaptive) CurrentRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.bucket.Limit())
}

func (a *Adaptive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bucket = rate.NewLimiter(rate.Limit(a.cfg.Rate), a.cfg.Burst)
	a.multiplier = 1.0
	a.successes = 0
	a.errors = 0
	a.lastEval = a.now()
}

func (a *Adaptive) Name() string { return StrategyAdaptive }
