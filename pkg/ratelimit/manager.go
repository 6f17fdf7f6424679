package ratelimit

import (
	"sync"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/log"
	"github.com/fableworks/taskcore/pkg/metrics"
	"github.com/fableworks/taskcore/pkg/types"
)

// Manager owns one strategy instance per key, created lazily on the first
// admission check. State is in-memory and per-process: in a multi-node
// deployment permits are enforced per node unless an external limiter store
// is substituted. A restart is a full-bucket reset, which is an accepted
// approximation.
type Manager struct {
	mu         sync.Mutex
	source     ConfigSource
	strategies map[Key]Strategy
}

// NewManager creates a manager resolving settings through source.
func NewManager(source ConfigSource) *Manager {
	return &Manager{
		source:     source,
		strategies: make(map[Key]Strategy),
	}
}

// strategyFor returns the strategy for key, building it on first use.
func (m *Manager) strategyFor(key Key) Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.strategies[key]; ok {
		return s
	}
	cfg := m.source.Effective(key)
	s := New(cfg)
	m.strategies[key] = s
	log.WithStrategy(s.Name()).Debug().
		Str("key", key.String()).
		Float64("rate", cfg.Rate).
		Int("burst", cfg.Burst).
		Msg("created limiter")
	return s
}

// TryAcquire attempts to take one permit for key.
func (m *Manager) TryAcquire(key Key, requestID string) bool {
	s := m.strategyFor(key)
	granted := s.TryAcquire(requestID)
	if granted {
		metrics.LimiterGrants.WithLabelValues(key.Provider, s.Name()).Inc()
	} else {
		metrics.LimiterDenials.WithLabelValues(key.Provider, s.Name()).Inc()
	}
	metrics.LimiterRate.WithLabelValues(key.Provider, s.Name()).Set(s.CurrentRate())
	return granted
}

// RecordSuccess feeds a successful call back into the key's strategy.
func (m *Manager) RecordSuccess(key Key, requestID string) {
	s := m.strategyFor(key)
	s.RecordSuccess(requestID)
	metrics.LimiterRate.WithLabelValues(key.Provider, s.Name()).Set(s.CurrentRate())
}

// RecordError feeds a failed call back into the key's strategy.
func (m *Manager) RecordError(key Key, class types.ErrorClass, requestID string) {
	s := m.strategyFor(key)
	s.RecordError(class, requestID)
	metrics.LimiterRate.WithLabelValues(key.Provider, s.Name()).Set(s.CurrentRate())
}

// AvailablePermits reports the tokens left for key.
func (m *Manager) AvailablePermits(key Key) float64 {
	return m.strategyFor(key).AvailablePermits()
}

// Reset restores the key's strategy to its configured state.
func (m *Manager) Reset(key Key) {
	m.strategyFor(key).Reset()
}

// StaticSource resolves limiter settings from loaded configuration, applying
// model-level overrides on top of the provider entry. Unknown providers get
// a standard bucket at a cautious default rate.
type StaticSource struct {
	providers map[string]config.ProviderConfig
}

// NewStaticSource creates a source from per-provider configuration.
func NewStaticSource(providers map[string]config.ProviderConfig) *StaticSource {
	return &StaticSource{providers: providers}
}

const (
	defaultRate  = 1.0
	defaultBurst = 5
)

// Effective resolves the settings for key.
func (s *StaticSource) Effective(key Key) Config {
	p, ok := s.providers[key.Provider]
	if !ok {
		return Config{Strategy: StrategyStandard, Rate: defaultRate, Burst: defaultBurst}
	}
	if m, ok := p.Models[key.Model]; ok {
		p = merged(p, m)
	}
	return Config{
		Strategy:     p.Strategy,
		Rate:         p.Rate,
		Burst:        p.Burst,
		DailyLimit:   p.DailyLimit,
		SafetyBuffer: p.SafetyBuffer,
	}
}

// merged overlays non-zero model settings on the provider entry.
func merged(base, override config.ProviderConfig) config.ProviderConfig {
	out := base
	if override.Strategy != "" {
		out.Strategy = override.Strategy
	}
	if override.Rate > 0 {
		out.Rate = override.Rate
	}
	if override.Burst > 0 {
		out.Burst = override.Burst
	}
	if override.DailyLimit > 0 {
		out.DailyLimit = override.DailyLimit
	}
	if override.SafetyBuffer > 0 {
		out.SafetyBuffer = override.SafetyBuffer
	}
	return out
}
