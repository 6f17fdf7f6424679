package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport selection values for EngineConfig.Transport.
const (
	TransportInProc = "inproc"
	TransportBroker = "broker"
)

// Config is the top-level configuration for the task core.
type Config struct {
	NodeID  string        `yaml:"node_id"`
	DataDir string        `yaml:"data_dir"`
	Log     LogConfig     `yaml:"log"`
	Engine  EngineConfig  `yaml:"engine"`
	Retry   RetryConfig   `yaml:"retry"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	// Providers holds per-provider rate limiting settings keyed by provider
	// name. Model and user overrides hang off each provider entry.
	Providers map[string]ProviderConfig `yaml:"providers"`
	Metrics   MetricsConfig             `yaml:"metrics"`
}

// LogConfig configures the zerolog sink.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EngineConfig configures dispatch and the worker pool.
type EngineConfig struct {
	// Transport selects "inproc" or "broker".
	Transport string `yaml:"transport"`
	// Workers is the size of the fixed execution pool. Workers run one task
	// fully before taking the next, and tasks are I/O bound, so size for
	// provider-call latency rather than CPU count.
	Workers int `yaml:"workers"`
	// QueueCapacity bounds the in-process dispatch queue.
	QueueCapacity int `yaml:"queue_capacity"`
	// ClaimLease is how long a RUNNING task may go without a write before
	// the sweeper considers its owner dead.
	ClaimLease time.Duration `yaml:"claim_lease"`
}

// yaml.v3 has no native parsing for "15s"-style durations, so the
// duration-bearing sections decode through string fields. Missing keys keep
// whatever value the struct already holds, preserving the overlay-over-
// defaults behavior of Load.

type rawEngineConfig struct {
	Transport     string `yaml:"transport"`
	Workers       int    `yaml:"workers"`
	QueueCapacity int    `yaml:"queue_capacity"`
	ClaimLease    string `yaml:"claim_lease"`
}

// UnmarshalYAML decodes the engine section, parsing claim_lease as a
// duration string.
func (e *EngineConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := rawEngineConfig{
		Transport:     e.Transport,
		Workers:       e.Workers,
		QueueCapacity: e.QueueCapacity,
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	e.Transport = raw.Transport
	e.Workers = raw.Workers
	e.QueueCapacity = raw.QueueCapacity
	if raw.ClaimLease != "" {
		d, err := time.ParseDuration(raw.ClaimLease)
		if err != nil {
			return fmt.Errorf("engine.claim_lease: %w", err)
		}
		e.ClaimLease = d
	}
	return nil
}

type rawRetryConfig struct {
	MaxAttempts     *int     `yaml:"max_attempts"`
	DelayTable      []string `yaml:"delay_table"`
	QuotaDelayTable []string `yaml:"quota_delay_table"`
}

// UnmarshalYAML decodes the retry section, parsing the delay tables as
// duration strings.
func (r *RetryConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw rawRetryConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxAttempts != nil {
		r.MaxAttempts = *raw.MaxAttempts
	}
	if raw.DelayTable != nil {
		table, err := parseDurations("retry.delay_table", raw.DelayTable)
		if err != nil {
			return err
		}
		r.DelayTable = table
	}
	if raw.QuotaDelayTable != nil {
		table, err := parseDurations("retry.quota_delay_table", raw.QuotaDelayTable)
		if err != nil {
			return err
		}
		r.QuotaDelayTable = table
	}
	return nil
}

func parseDurations(field string, in []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(in))
	for _, s := range in {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// RetryConfig configures the retry manager.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	// DelayTable is the exponential backoff schedule. Attempts beyond the
	// table length reuse the last entry.
	DelayTable []time.Duration `yaml:"delay_table"`
	// QuotaDelayTable overrides DelayTable for quota-class errors, which
	// deserve a flatter, longer curve than transient network failures.
	QuotaDelayTable []time.Duration `yaml:"quota_delay_table"`
}

// SweeperConfig configures the recovery sweeps.
type SweeperConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression; default runs every 30 seconds.
	Schedule string `yaml:"schedule"`
}

// ProviderConfig holds effective rate limiting settings for one provider.
type ProviderConfig struct {
	// Strategy selects conservative, standard, aggressive or adaptive.
	Strategy string `yaml:"strategy"`
	// Rate is the steady-state permits per second.
	Rate float64 `yaml:"rate"`
	// Burst is the bucket capacity.
	Burst int `yaml:"burst"`
	// DailyLimit caps total requests per calendar day (conservative only).
	DailyLimit int `yaml:"daily_limit"`
	// SafetyBuffer reserves permits under the daily limit (conservative only).
	SafetyBuffer int `yaml:"safety_buffer"`
	// Models overrides settings per model name.
	Models map[string]ProviderConfig `yaml:"models,omitempty"`
}

// MetricsConfig configures the prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a config with working defaults for a single-node setup.
func Default() *Config {
	return &Config{
		NodeID:  "",
		DataDir: "./data",
		Log:     LogConfig{Level: "info"},
		Engine: EngineConfig{
			Transport:     TransportInProc,
			Workers:       8,
			QueueCapacity: 256,
			ClaimLease:    5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			DelayTable:  []time.Duration{15 * time.Second, time.Minute, 5 * time.Minute},
			QuotaDelayTable: []time.Duration{
				time.Minute, 5 * time.Minute, 15 * time.Minute,
			},
		},
		Sweeper: SweeperConfig{Enabled: true, Schedule: "@every 30s"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9464"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks config invariants.
func (c *Config) Validate() error {
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be positive, got %d", c.Engine.Workers)
	}
	if c.Engine.QueueCapacity <= 0 {
		return fmt.Errorf("engine.queue_capacity must be positive, got %d", c.Engine.QueueCapacity)
	}
	if c.Engine.Transport != TransportInProc && c.Engine.Transport != TransportBroker {
		return fmt.Errorf("engine.transport must be inproc or broker, got %q", c.Engine.Transport)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	if len(c.Retry.DelayTable) == 0 {
		return fmt.Errorf("retry.delay_table must not be empty")
	}
	for name, p := range c.Providers {
		if p.Rate <= 0 {
			return fmt.Errorf("provider %s: rate must be positive", name)
		}
		if p.Burst <= 0 {
			return fmt.Errorf("provider %s: burst must be positive", name)
		}
		if p.DailyLimit > 0 && p.SafetyBuffer >= p.DailyLimit {
			return fmt.Errorf("provider %s: safety_buffer must be below daily_limit", name)
		}
	}
	return nil
}
