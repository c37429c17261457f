// Package config loads the patchguard configuration file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/patchguard/internal/alert"
	"github.com/ppiankov/patchguard/internal/cache"
	"github.com/ppiankov/patchguard/internal/decompose"
	"github.com/ppiankov/patchguard/internal/outcome"
	"github.com/ppiankov/patchguard/internal/risk"
	"github.com/ppiankov/patchguard/internal/sandbox"
)

// DefaultSeed seeds the sandbox generator when no seed is configured.
const DefaultSeed uint32 = 12345

// LogConfig selects the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config holds every tunable of the validation pipeline.
type Config struct {
	MaxOperations   int                  `yaml:"max_operations"`
	Seed            uint32               `yaml:"seed"`
	RejectThreshold float64              `yaml:"reject_threshold"`
	SeverityWeights risk.SeverityWeights `yaml:"severity_weights"`
	Factors         risk.FactorTable     `yaml:"factors"`
	Sandbox         sandbox.Constraints  `yaml:"sandbox"`
	Outcome         outcome.Config       `yaml:"outcome"`
	Cache           cache.Options        `yaml:"cache"`
	AuditLog        string               `yaml:"audit_log"`
	WhitelistPath   string               `yaml:"whitelist_path"`
	PatternsPath    string               `yaml:"patterns_path"`
	Alerts          []alert.AlertConfig  `yaml:"alerts"`
	Log             LogConfig            `yaml:"log"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxOperations:   decompose.DefaultMaxOperations,
		Seed:            DefaultSeed,
		RejectThreshold: risk.DefaultRejectThreshold,
		SeverityWeights: risk.DefaultSeverityWeights(),
		Factors:         risk.DefaultFactors(),
		Sandbox:         sandbox.DefaultConstraints(),
		Outcome:         outcome.DefaultConfig(),
		Cache:           cache.Options{Backend: "memory", TTL: 24 * time.Hour},
		Log:             LogConfig{Level: "info"},
	}
}

// Scorer builds a risk scorer from the configured weights and threshold.
func (c *Config) Scorer() *risk.Scorer {
	return &risk.Scorer{
		Weights:  c.SeverityWeights,
		Factors:  c.Factors,
		RejectAt: c.RejectThreshold,
	}
}

// Validate rejects values that would break the pipeline's bounds.
func (c *Config) Validate() error {
	if c.MaxOperations <= 0 {
		return fmt.Errorf("max_operations must be positive, got %d", c.MaxOperations)
	}
	if c.RejectThreshold <= 0 || c.RejectThreshold > 1 {
		return fmt.Errorf("reject_threshold must be in (0,1], got %v", c.RejectThreshold)
	}
	if c.Sandbox.MinMemory > c.Sandbox.MaxMemory {
		return fmt.Errorf("sandbox.min_memory %d exceeds max_memory %d", c.Sandbox.MinMemory, c.Sandbox.MaxMemory)
	}
	for _, a := range c.Alerts {
		if a.URL == "" {
			return fmt.Errorf("alert without url")
		}
	}
	return nil
}

// DefaultPath is ~/.patchguard/config.yaml, or "" without a home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".patchguard", "config.yaml")
}

// LoadConfig loads configuration from a YAML file.
// Empty path falls back to ~/.patchguard/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads configuration and returns the SHA-256 hash of the
// raw YAML bytes on disk. When no file exists, the hash is the SHA-256 of
// empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return DefaultConfig(), hashBytes(nil), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashBytes(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, hashBytes(data), nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
