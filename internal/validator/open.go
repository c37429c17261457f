package validator

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/patchguard/internal/alert"
	"github.com/ppiankov/patchguard/internal/audit"
	"github.com/ppiankov/patchguard/internal/config"
)

// Open builds a Validator with the audit log and alert dispatcher named in
// cfg. configHash is recorded in audit entries and alerts. The validator
// owns the audit log and closes it on Close.
func Open(cfg *config.Config, configHash string, logger *zap.Logger) (*Validator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts := []Option{WithLogger(logger), WithConfigHash(configHash)}

	if d := NewAlerts(cfg.Alerts, logger); d != nil {
		opts = append(opts, WithAlerts(d))
	}

	var auditLog *audit.Log
	if cfg.AuditLog != "" {
		l, err := audit.Open(cfg.AuditLog)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		auditLog = l
		opts = append(opts, WithAudit(l))
	}

	v, err := New(cfg, opts...)
	if err != nil {
		if auditLog != nil {
			auditLog.Close()
		}
		return nil, err
	}
	v.ownsAudit = auditLog != nil
	return v, nil
}

// NewAlerts builds a dispatcher for the configured webhooks that logs failed
// deliveries. It returns nil when no webhooks are configured.
func NewAlerts(configs []alert.AlertConfig, logger *zap.Logger) *alert.Dispatcher {
	d := alert.NewDispatcher(configs)
	if d == nil {
		return nil
	}
	if logger != nil {
		d.OnError(func(ac alert.AlertConfig, err error) {
			logger.Warn("alert delivery failed", zap.String("url", ac.URL), zap.Error(err))
		})
	}
	return d
}

// ConfigHash returns the hash of the configuration file the validator was
// opened with.
func (v *Validator) ConfigHash() string { return v.configHash }
