// Package outcome turns validation results into compile events with meter
// deltas for the caller.
package outcome

import (
	"fmt"
	"strings"

	"github.com/ppiankov/patchguard/internal/model"
)

// Meter names used in event deltas.
const (
	MeterStability = "stability"
	MeterInsight   = "insight"
)

// Config holds event thresholds and deltas.
type Config struct {
	// HighBaseline is the declared baseline risk above which an accepted
	// patch also emits a warning event.
	HighBaseline float64 `yaml:"high_baseline" json:"high_baseline"`
	// HighMemory is the simulated memory above which a performance event
	// is emitted.
	HighMemory int64 `yaml:"high_memory" json:"high_memory"`

	WarningStability     float64 `yaml:"warning_stability" json:"warning_stability"`
	PerformanceStability float64 `yaml:"performance_stability" json:"performance_stability"`
	PerformanceInsight   float64 `yaml:"performance_insight" json:"performance_insight"`
	ErrorStability       float64 `yaml:"error_stability" json:"error_stability"`
	SecurityStability    float64 `yaml:"security_stability" json:"security_stability"`
	SecurityInsight      float64 `yaml:"security_insight" json:"security_insight"`
}

// DefaultConfig returns the built-in thresholds and deltas.
func DefaultConfig() Config {
	return Config{
		HighBaseline:         0.6,
		HighMemory:           8 << 20,
		WarningStability:     -5,
		PerformanceStability: -3,
		PerformanceInsight:   -1,
		ErrorStability:       -20,
		SecurityStability:    -10,
		SecurityInsight:      5,
	}
}

// Generator produces outcome events. Pure and deterministic.
type Generator struct {
	Config Config
}

// NewGenerator returns a Generator with the given config.
func NewGenerator(cfg Config) *Generator {
	return &Generator{Config: cfg}
}

// Events derives the events for a finished result.
func (g *Generator) Events(plan model.PatchPlan, vctx model.ValidationContext, result *model.SandboxExecutionResult) []model.OutcomeEvent {
	c := g.Config
	seed := EventSeed(plan.Diff, vctx.Scenario, vctx.PlayerIntent)
	var events []model.OutcomeEvent

	if result.Success {
		msg := "patch compiled and simulated"
		if plan.Effects.Description != "" {
			msg = plan.Effects.Description
		}
		events = append(events, newEvent(seed, model.OutcomeSuccess, msg, copyDeltas(plan.Effects.Deltas)))

		if model.Clamp01(plan.BaselineRisk) > c.HighBaseline {
			events = append(events, newEvent(seed, model.OutcomeWarning,
				fmt.Sprintf("declared baseline risk %.2f is high", model.Clamp01(plan.BaselineRisk)),
				map[string]float64{MeterStability: c.WarningStability}))
		}
		if result.MemoryUsage > c.HighMemory {
			events = append(events, newEvent(seed, model.OutcomePerformanceImpact,
				fmt.Sprintf("simulated memory %d bytes exceeds %d", result.MemoryUsage, c.HighMemory),
				map[string]float64{MeterStability: c.PerformanceStability, MeterInsight: c.PerformanceInsight}))
		}
		return events
	}

	msg := "patch rejected"
	if len(result.Errors) > 0 {
		msg = strings.Join(result.Errors, "; ")
	}
	events = append(events, newEvent(seed, model.OutcomeError, msg,
		map[string]float64{MeterStability: c.ErrorStability}))

	if mentionsSecurity(result.Errors) {
		events = append(events, newEvent(seed, model.OutcomeSecurityViolation,
			"security violation blocked; review the explanation to learn why",
			map[string]float64{MeterStability: c.SecurityStability, MeterInsight: c.SecurityInsight}))
	}
	return events
}

func mentionsSecurity(errs []string) bool {
	for _, e := range errs {
		lower := strings.ToLower(e)
		if strings.Contains(lower, "security") || strings.Contains(lower, "critical") {
			return true
		}
	}
	return false
}

func newEvent(seed uint32, kind model.OutcomeKind, msg string, deltas map[string]float64) model.OutcomeEvent {
	if deltas == nil {
		deltas = map[string]float64{}
	}
	return model.OutcomeEvent{
		ID:      EventID(seed, kind),
		Kind:    kind,
		Message: msg,
		Deltas:  deltas,
	}
}

func copyDeltas(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Project applies event deltas to meters, clamping each meter to its range.
// Unknown meter names are ignored.
func Project(m model.Meters, events []model.OutcomeEvent) model.Meters {
	out := m.Clamped()
	for _, e := range events {
		out.Stability += e.Deltas[MeterStability]
		out.Insight += e.Deltas[MeterInsight]
		out = out.Clamped()
	}
	return out
}
