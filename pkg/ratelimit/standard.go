package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fableworks/taskcore/pkg/types"
)

// Standard is a plain token bucket at the configured steady-state rate and
// burst capacity. It ignores success and error feedback; intended for paid
// APIs with well-known fixed limits.
type Standard struct {
	mu     sync.Mutex
	cfg    Config
	bucket *rate.Limiter
	now    func() time.Time
}

// NewStandard creates a standard strategy from cfg.
func NewStandard(cfg Config) *Standard {
	return &Standard{
		cfg:    cfg,
		bucket: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		now:    time.Now,
	}
}

func (s *Standard) TryAcquire(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket.AllowN(s.now(), 1)
}

func (s *Standard) RecordSuccess(requestID string) {}

func (s *Standard) RecordError(class types.ErrorClass, requestID string) {}

func (s *Standard) AvailablePermits() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bucket.TokensAt(s.now())
}

func (s *Standard) CurrentRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.bucket.Limit())
}

func (s *Standard) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket = rate.NewLimiter(rate.Limit(s.cfg.Rate), s.cfg.Burst)
}

func (s *Standard) Name() string { return StrategyStandard }
