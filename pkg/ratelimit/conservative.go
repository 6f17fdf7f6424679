package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fableworks/taskcore/pkg/types"
)

const (
	// conservativeErrorThreshold is how many consecutive errors shrink the
	// effective daily ceiling.
	conservativeErrorThreshold = 3
	// conservativeMinReserve is the budget left standing after a quota
	// error collapses the ceiling.
	conservativeMinReserve = 1
)

// Conservative enforces a hard daily ceiling with a safety buffer on top of
// a token bucket. Designed for free-tier APIs with strict daily quotas:
// repeated consecutive errors halve the effective ceiling until a success is
// observed, and a quota-class error immediately collapses the remaining
// budget to a minimal reserve.
type Conservative struct {
	mu     sync.Mutex
	cfg    Config
	bucket *rate.Limiter
	now    func() time.Time

	baseCeiling       int // DailyLimit - SafetyBuffer
	ceiling           int
	usedToday         int
	dayStart          time.Time
	consecutiveErrors int
}

// NewConservative creates a conservative strategy from cfg.
func NewConservative(cfg Config) *Conservative {
	ceiling := cfg.DailyLimit - cfg.SafetyBuffer
	if cfg.DailyLimit <= 0 {
		ceiling = 0 // no daily cap
	}
	c := &Conservative{
		cfg:         cfg,
		bucket:      rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		now:         time.Now,
		baseCeiling: ceiling,
		ceiling:     ceiling,
	}
	c.dayStart = startOfDay(c.now())
	return c
}

func (c *Conservative) TryAcquire(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.rollDay(now)

	if c.baseCeiling > 0 && c.usedToday >= c.ceiling {
		return false
	}
	if !c.bucket.AllowN(now, 1) {
		return false
	}
	c.usedToday++
	return true
}

func (c *Conservative) RecordSuccess(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveErrors = 0
	c.ceiling = c.baseCeiling
}

func (c *Conservative) RecordError(class types.ErrorClass, requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.baseCeiling <= 0 {
		return
	}
	if class.Quota() {
		// The provider says the day's quota is gone regardless of what our
		// counter believes. Keep only a minimal reserve.
		c.ceiling = c.usedToday + conservativeMinReserve
		if c.ceiling > c.baseCeiling {
			c.ceiling = c.baseCeiling
		}
		c.consecutiveErrors++
		return
	}
	c.consecutiveErrors++
	if c.consecutiveErrors >= conservativeErrorThreshold {
		c.ceiling = c.ceiling / 2
		if c.ceiling < conservativeMinReserve {
			c.ceiling = conservativeMinReserve
		}
	}
}

func (c *Conservative) AvailablePermits() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens := c.bucket.TokensAt(c.now())
	if c.baseCeiling <= 0 {
		return tokens
	}
	remaining := float64(c.ceiling - c.usedToday)
	if remaining < 0 {
		remaining = 0
	}
	if remaining < tokens {
		return remaining
	}
	return tokens
}

func (c *Conservative) CurrentRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(c.bucket.Limit())
}

func (c *Conservative) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket = rate.NewLimiter(rate.Limit(c.cfg.Rate), c.cfg.Burst)
	c.ceiling = c.baseCeiling
	c.usedToday = 0
	c.consecutiveErrors = 0
	c.dayStart = startOfDay(c.now())
}

func (c *Conservative) Name() string { return StrategyConservative }

// rollDay resets the daily counter when the local calendar day changes.
// Resets happen exactly once per crossing: dayStart advances to the current
// day, never incrementally.
func (c *Conservative) rollDay(now time.Time) {
	day := startOfDay(now)
	if day.After(c.dayStart) {
		c.dayStart = day
		c.usedToday = 0
		c.ceiling = c.baseCeiling
		c.consecutiveErrors = 0
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
