package validator

import (
	"go.uber.org/zap"

	"github.com/ppiankov/patchguard/internal/alert"
	"github.com/ppiankov/patchguard/internal/audit"
	"github.com/ppiankov/patchguard/internal/cache"
	"github.com/ppiankov/patchguard/internal/detect"
	"github.com/ppiankov/patchguard/internal/whitelist"
)

// Option customizes a Validator.
type Option func(*Validator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithStore replaces the cache store built from the configuration.
func WithStore(s cache.Store) Option {
	return func(v *Validator) { v.store = s }
}

// WithAudit appends one entry per validation to the given log.
func WithAudit(l *audit.Log) Option {
	return func(v *Validator) { v.audit = l }
}

// WithCatalog replaces the whitelist loaded from the configuration.
func WithCatalog(c *whitelist.Catalog) Option {
	return func(v *Validator) { v.catalog = c }
}

// WithDetector replaces the detector built from the configuration.
func WithDetector(d *detect.Detector) Option {
	return func(v *Validator) { v.detector = d }
}

// WithAlerts dispatches webhook alerts for rejected results.
func WithAlerts(d *alert.Dispatcher) Option {
	return func(v *Validator) { v.alerts = d }
}

// WithConfigHash records the configuration hash in audit entries and alerts.
func WithConfigHash(hash string) Option {
	return func(v *Validator) { v.configHash = hash }
}
