package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fableworks/taskcore/pkg/config"
	"github.com/fableworks/taskcore/pkg/types"
)

// fakeClock drives the injectable now function of each strategy.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *fakeClock) nextDay()                { c.t = c.t.Add(24 * time.Hour) }

func TestStandardRespectsBurst(t *testing.T) {
	s := NewStandard(Config{Rate: 1, Burst: 3})

	// The bucket holds exactly burst tokens; one more is denied.
	for i := 0; i < 3; i++ {
		assert.True(t, s.TryAcquire("r"), "acquisition %d should pass", i)
	}
	assert.False(t, s.TryAcquire("r"))
}

func TestStandardRefillsOverTime(t *testing.T) {
	s := NewStandard(Config{Rate: 100, Burst: 1})

	assert.True(t, s.TryAcquire("r"))
	assert.False(t, s.TryAcquire("r"))

	// 100/s refills one token in 10ms.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, s.TryAcquire("r"))
}

func TestConservativeDailyCeiling(t *testing.T) {
	// Daily limit 5 with safety buffer 1 leaves 4 usable permits.
	c := NewConservative(Config{Rate: 100, Burst: 10, DailyLimit: 5, SafetyBuffer: 1})
	clock := newFakeClock()
	c.now = clock.now
	c.dayStart = startOfDay(clock.now())

	for i := 0; i < 4; i++ {
		assert.True(t, c.TryAcquire("r"), "acquisition %d should pass", i)
	}
	assert.False(t, c.TryAcquire("r"), "the safety buffer must stay untouched")
}

func TestConservativeResetsAtMidnight(t *testing.T) {
	c := NewConservative(Config{Rate: 100, Burst: 10, DailyLimit: 3, SafetyBuffer: 1})
	clock := newFakeClock()
	c.now = clock.now
	c.dayStart = startOfDay(clock.now())

	assert.True(t, c.TryAcquire("r"))
	assert.True(t, c.TryAcquire("r"))
	assert.False(t, c.TryAcquire("r"))

	clock.nextDay()
	assert.True(t, c.TryAcquire("r"), "the counter resets on the day crossing")
}

func TestConservativeQuotaErrorCollapsesCeiling(t *testing.T) {
	c := NewConservative(Config{Rate: 100, Burst: 100, DailyLimit: 100, SafetyBuffer: 10})
	clock := newFakeClock()
	c.now = clock.now
	c.dayStart = startOfDay(clock.now())

	assert.True(t, c.TryAcquire("r"))
	assert.True(t, c.TryAcquire("r"))

	// The provider says the quota is gone; only a minimal reserve remains.
	c.RecordError(types.ErrorClassAIQuota, "r")
	assert.True(t, c.TryAcquire("r"))
	assert.False(t, c.TryAcquire("r"))
}

func TestConservativeConsecutiveErrorsHalveCeiling(t *testing.T) {
	c := NewConservative(Config{Rate: 1000, Burst: 1000, DailyLimit: 41, SafetyBuffer: 1})
	clock := newFakeClock()
	c.now = clock.now
	c.dayStart = startOfDay(clock.now())

	for i := 0; i < 3; i++ {
		c.RecordError(types.ErrorClassRemoteService, "r")
	}
	// Ceiling halved from 40 to 20.
	for i := 0; i < 20; i++ {
		assert.True(t, c.TryAcquire("r"), "acquisition %d should pass", i)
	}
	assert.False(t, c.TryAcquire("r"))

	// One success restores the full ceiling.
	c.RecordSuccess("r")
	assert.True(t, c.TryAcquire("r"))
}

func TestAdaptiveDecreasesRateUnderErrors(t *testing.T) {
	a := NewAdaptive(Config{Rate: 10, Burst: 10})
	clock := newFakeClock()
	a.now = clock.now
	a.lastEval = clock.now()

	initial := a.CurrentRate()

	// Half of the observed calls fail.
	for i := 0; i < 15; i++ {
		a.RecordSuccess("r")
		a.RecordError(types.ErrorClassRemoteService, "r")
	}
	clock.advance(11 * time.Second)
	a.TryAcquire("r") // triggers the evaluation

	assert.Less(t, a.CurrentRate(), initial)
}

func TestAdaptiveHoldsOrGrowsRateWhenClean(t *testing.T) {
	a := NewAdaptive(Config{Rate: 10, Burst: 10})
	clock := newFakeClock()
	a.now = clock.now
	a.lastEval = clock.now()

	initial := a.CurrentRate()

	for i := 0; i < 30; i++ {
		a.RecordSuccess("r")
	}
	clock.advance(11 * time.Second)
	a.TryAcquire("r")

	assert.GreaterOrEqual(t, a.CurrentRate(), initial)
}

func TestAdaptiveQuotaErrorCutsImmediately(t *testing.T) {
	a := NewAdaptive(Config{Rate: 10, Burst: 10})
	clock := newFakeClock()
	a.now = clock.now
	a.lastEval = clock.now()

	initial := a.CurrentRate()
	a.RecordError(types.ErrorClassAIQuota, "r")

	// No evaluation window needed for quota exhaustion.
	assert.Equal(t, initial/2, a.CurrentRate())
}

func TestAdaptiveRateStaysAboveFloor(t *testing.T) {
	a := NewAdaptive(Config{Rate: 10, Burst: 10})
	clock := newFakeClock()
	a.now = clock.now
	a.lastEval = clock.now()

	for i := 0; i < 10; i++ {
		a.RecordError(types.ErrorClassAIQuota, "r")
	}
	assert.InDelta(t, 10*adaptiveFloor, a.CurrentRate(), 0.001)
}

func TestAggressiveDoublesConfiguredRate(t *testing.T) {
	a := NewAggressive(Config{Rate: 5, Burst: 2})
	assert.Equal(t, 10.0, a.CurrentRate())

	// Burst is doubled too.
	for i := 0; i < 4; i++ {
		assert.True(t, a.TryAcquire("r"), "acquisition %d should pass", i)
	}
	assert.False(t, a.TryAcquire("r"))
}

func TestAggressiveQuotaCutAndRecovery(t *testing.T) {
	a := NewAggressive(Config{Rate: 5, Burst: 2})
	clock := newFakeClock()
	a.now = clock.now

	a.RecordError(types.ErrorClassAIQuota, "r")
	assert.InDelta(t, 3.0, a.CurrentRate(), 0.001)

	// Successes inside the cooldown window don't count toward recovery.
	for i := 0; i < 10; i++ {
		a.RecordSuccess("r")
	}
	assert.InDelta(t, 3.0, a.CurrentRate(), 0.001)

	clock.advance(31 * time.Second)
	for i := 0; i < 5; i++ {
		a.RecordSuccess("r")
	}
	assert.Equal(t, 10.0, a.CurrentRate())
}

func TestAggressiveErrorResetsRecoveryRun(t *testing.T) {
	a := NewAggressive(Config{Rate: 5, Burst: 2})
	clock := newFakeClock()
	a.now = clock.now

	a.RecordError(types.ErrorClassAIQuota, "r")
	clock.advance(31 * time.Second)

	for i := 0; i < 4; i++ {
		a.RecordSuccess("r")
	}
	a.RecordError(types.ErrorClassRemoteService, "r")
	for i := 0; i < 4; i++ {
		a.RecordSuccess("r")
	}
	// The run restarted, so the rate is still reduced.
	assert.InDelta(t, 3.0, a.CurrentRate(), 0.001)

	a.RecordSuccess("r")
	assert.Equal(t, 10.0, a.CurrentRate())
}

func TestFactoryFallsBackToStandard(t *testing.T) {
	s := New(Config{Strategy: "bogus", Rate: 1, Burst: 1})
	assert.Equal(t, StrategyStandard, s.Name())
}

func TestFactorySelectsStrategies(t *testing.T) {
	tests := []struct {
		strategy string
		want     string
	}{
		{StrategyConservative, StrategyConservative},
		{StrategyStandard, StrategyStandard},
		{StrategyAggressive, StrategyAggressive},
		{StrategyAdaptive, StrategyAdaptive},
	}
	for _, tt := range tests {
		s := New(Config{Strategy: tt.strategy, Rate: 1, Burst: 1, DailyLimit: 10, SafetyBuffer: 1})
		assert.Equal(t, tt.want, s.Name())
	}
}

func TestManagerKeysAreIsolated(t *testing.T) {
	m := NewManager(NewStaticSource(map[string]config.ProviderConfig{
		"openai": {Strategy: StrategyStandard, Rate: 100, Burst: 1},
	}))

	alice := Key{Provider: "openai", Model: "gpt-4", UserID: "alice"}
	bob := Key{Provider: "openai", Model: "gpt-4", UserID: "bob"}

	assert.True(t, m.TryAcquire(alice, "r1"))
	// Alice's bucket is drained; Bob has his own.
	assert.False(t, m.TryAcquire(alice, "r2"))
	assert.True(t, m.TryAcquire(bob, "r3"))
}

func TestManagerModelOverride(t *testing.T) {
	m := NewManager(NewStaticSource(map[string]config.ProviderConfig{
		"openai": {
			Strategy: StrategyStandard,
			Rate:     100,
			Burst:    5,
			Models: map[string]config.ProviderConfig{
				"gpt-4": {Burst: 1},
			},
		},
	}))

	k := Key{Provider: "openai", Model: "gpt-4", UserID: "u"}
	assert.True(t, m.TryAcquire(k, "r1"))
	assert.False(t, m.TryAcquire(k, "r2"), "the model override caps burst at 1")
}

func TestManagerReset(t *testing.T) {
	m := NewManager(NewStaticSource(map[string]config.ProviderConfig{
		"openai": {Strategy: StrategyStandard, Rate: 0.001, Burst: 1},
	}))

	k := Key{Provider: "openai", Model: "gpt-4", UserID: "u"}
	assert.True(t, m.TryAcquire(k, "r1"))
	assert.False(t, m.TryAcquire(k, "r2"))

	m.Reset(k)
	assert.True(t, m.TryAcquire(k, "r3"))
}

func TestKeyString(t *testing.T) {
	k := Key{Provider: "openai", Model: "gpt-4", UserID: "alice"}
	assert.Equal(t, "openai/gpt-4/alice", k.String())
}
