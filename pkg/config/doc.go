/*
Package config loads and validates taskcore configuration.

Configuration is a single YAML file overlaid onto compiled-in defaults:
Load starts from Default(), applies the file if it exists, and validates
the result. A missing file is not an error - the defaults describe a
working single-node deployment - but an invalid file always is; the
process refuses to start on a bad config rather than limping.

# Layout

	node_id: worker-1
	log:
	  level: info
	  json: true
	engine:
	  transport: inproc        # or "broker"
	  workers: 8
	  queue_capacity: 256
	  claim_lease: 5m
	retry:
	  max_attempts: 5
	  delay_table: [15s, 1m, 5m, 15m]
	  quota_delay_table: [1h, 6h, 24h]
	sweeper:
	  enabled: true
	  schedule: "@every 1m"
	providers:
	  openai:
	    strategy: conservative
	    requests_per_minute: 60
	    daily_limit: 10000
	    safety_buffer: 500
	    models:
	      gpt-4:
	        requests_per_minute: 20
	metrics:
	  enabled: true
	  addr: ":9090"

Durations are written as Go duration strings; custom YAML unmarshalling
parses them and preserves defaults for fields the file omits. Per-model
provider settings overlay the provider's own, field by field.

Validation checks the structural invariants the rest of the system
assumes: a known transport, positive worker and queue counts, non-empty
retry tables, non-negative rates, and safety buffers strictly smaller
than the daily limits they protect.
*/
package config
