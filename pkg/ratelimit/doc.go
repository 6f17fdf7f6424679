/*
Package ratelimit provides provider-aware adaptive rate limiting for AI calls.

AI providers meter access by requests per minute, tokens per day, and
opaque server-side quotas that surface only as 429 responses. A fixed
client-side bucket either wastes quota headroom or slams into provider
errors. This package keeps a limiter per (provider, model, user) key and
lets the caller pick, per provider, how that limiter reacts to what the
provider is actually doing.

# Architecture

	┌──────────────────── RATE LIMIT MANAGER ───────────────────────┐
	│                                                                │
	│  Key{Provider, Model, UserID} ──► lazily created Strategy      │
	│                                                                │
	│  ConfigSource.Effective(key)                                   │
	│    provider defaults overlaid with per-model overrides         │
	│                                                                │
	│  ┌──────────────┬──────────────┬──────────────┬─────────────┐  │
	│  │   standard   │ conservative │  aggressive  │  adaptive   │  │
	│  ├──────────────┼──────────────┼──────────────┼─────────────┤  │
	│  │ plain token  │ daily budget │ 2x rate, cut │ error-ratio │  │
	│  │ bucket       │ + safety     │ hard on 429, │ feedback    │  │
	│  │              │ buffer       │ cooldown     │ loop        │  │
	│  └──────────────┴──────────────┴──────────────┴─────────────┘  │
	│                                                                │
	│  feedback:  RecordSuccess / RecordError(class)                 │
	└────────────────────────────────────────────────────────────────┘

All four strategies sit on golang.org/x/time/rate token buckets; the
differences are entirely in how they size and resize the bucket.

# Strategies

Standard: a plain rate.Limiter with the configured rate and burst.
Feedback is ignored. The baseline for providers that behave.

Conservative: for providers with hard daily ceilings. Tracks requests
used today against DailyLimit minus SafetyBuffer and denies once the
budget is spent, resetting at local midnight. A quota error collapses
the remaining budget to a single probing permit - one request is always
left so the strategy can discover when the provider recovers. Three
consecutive non-quota errors halve the ceiling; one success restores it.

Aggressive: for cheap or internal providers where throughput matters
more than politeness. Runs at twice the configured rate and burst. A
quota error cuts the rate to 30% and opens a cooldown window during
which every acquire is denied; five consecutive successes after the
cooldown restore full speed. Any error resets the success run.

Adaptive: closes the loop on observed error ratio. Every 10 seconds,
given at least 20 samples, it multiplies the rate by:

	error ratio >= 50%   x0.5
	error ratio >= 20%   x0.8
	error ratio <=  5%   x1.1

with the multiplier clamped to [0.1, 1.5] of the configured rate.
Counters are halved after each evaluation so old history fades. A quota
error skips the window and halves the rate immediately.

Every strategy carries an injectable clock so tests can step through
days and cooldowns without sleeping.

# Manager

The Manager is the process-wide entry point. It resolves the effective
Config for a key through a ConfigSource (StaticSource overlays per-model
settings onto provider defaults), creates the strategy on first use, and
fans TryAcquire / RecordSuccess / RecordError through to it:

	limiter := ratelimit.NewManager(ratelimit.NewStaticSource(cfg.Providers))
	key := ratelimit.Key{Provider: "openai", Model: "gpt-4", UserID: userID}

	if !limiter.TryAcquire(key, requestID) {
		return errRateLimited
	}
	resp, err := client.Generate(ctx, req)
	if err != nil {
		limiter.RecordError(key, types.ClassOf(err), requestID)
		return err
	}
	limiter.RecordSuccess(key, requestID)

Acquisition is non-blocking. A denied permit is a normal, retryable
condition: the caller reports it as a remote-service failure and the
retry machinery schedules the next attempt, by which time the bucket
has refilled or the strategy has recovered.

Keys are fully independent: one user hammering gpt-4 cannot starve
another user or another model. Reset(key) discards a strategy so the
next acquire rebuilds it from config, which operators use after raising
a provider's limits.

# Request IDs

TryAcquire and the feedback calls take the caller's request ID purely
for log correlation. A retried task attempt carries a new request ID,
so provider-side logs, limiter logs and task logs line up per attempt.
*/
package ratelimit
