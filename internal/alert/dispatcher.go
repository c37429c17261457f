package alert

import (
	"strings"
	"time"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/risk"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs []AlertConfig
	errs    func(AlertConfig, error)
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// OnError registers a callback for failed deliveries.
func (d *Dispatcher) OnError(fn func(AlertConfig, error)) {
	d.errs = fn
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Fires goroutines, does not block the caller.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			go func(cfg AlertConfig) {
				if err := Send(cfg, event); err != nil && d.errs != nil {
					d.errs(cfg, err)
				}
			}(cfg)
		}
	}
}

// DispatchResult raises the events a validation result warrants: critical for
// any critical finding, rejected for any unsuccessful result.
func (d *Dispatcher) DispatchResult(requestID, scenario, configHash string, res *model.SandboxExecutionResult) {
	for _, ev := range EventsFor(requestID, scenario, configHash, res) {
		d.Dispatch(ev)
	}
}

// EventsFor builds the alert events for a result. Accepted results yield none.
func EventsFor(requestID, scenario, configHash string, res *model.SandboxExecutionResult) []AlertEvent {
	if res == nil || res.Success {
		return nil
	}

	base := AlertEvent{
		Timestamp:  time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		RequestID:  requestID,
		Scenario:   scenario,
		CacheKey:   res.CacheKey,
		Reason:     strings.Join(res.Errors, "; "),
		RiskScore:  res.Security.RiskScore,
		Tier:       risk.Tier(res.Security.RiskScore),
		ConfigHash: configHash,
	}
	for _, v := range res.Security.Violations {
		base.Violations = append(base.Violations, string(v.Type))
	}

	rejected := base
	rejected.Event = EventRejected
	events := []AlertEvent{rejected}
	if res.Security.HasCritical() {
		critical := base
		critical.Event = EventCritical
		events = append(events, critical)
	}
	return events
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Event {
			return true
		}
	}
	return false
}
