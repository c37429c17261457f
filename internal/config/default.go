package config

// DefaultConfigYAML returns a commented configuration file mirroring
// DefaultConfig, written by `patchguard init-config`.
func DefaultConfigYAML() string {
	return `# patchguard configuration
# Omitted keys keep their built-in defaults.

max_operations: 10
seed: 12345
reject_threshold: 0.8

# Risk added per finding.
severity_weights:
  low: 0.1
  medium: 0.2
  high: 0.3
  critical: 0.4

# Per-scenario weights for risk factors, multiplied by occurrences (max 5).
factors:
  default:
    dynamic-evaluation: 0.3
    dynamic-function-construction: 0.3
    markup-manipulation: 0.2
    network-access: 0.15
    persistent-storage-access: 0.1
  xss:
    markup-manipulation: 0.3
  data-leak:
    network-access: 0.25
    persistent-storage-access: 0.2

sandbox:
  max_loops: 3
  max_recursion_depth: 10
  preview_length: 50
  min_memory: 1048576
  max_memory: 16777216
  validate_pass_rate: 0.85

outcome:
  high_baseline: 0.6
  high_memory: 8388608

# backend: memory | sqlite | redis
cache:
  backend: memory
  # path: ~/.patchguard/cache.db
  # redis_url: redis://localhost:6379/0
  ttl: 24h

# audit_log: ~/.patchguard/audit.jsonl
# whitelist_path: ~/.patchguard/whitelist.yaml
# patterns_path: ~/.patchguard/patterns.yaml

# alerts:
#   - url: https://hooks.slack.com/services/...
#     format: slack
#     events: [rejected, critical]

log:
  level: info
  json: false
`
}
