package model

import (
	"fmt"
	"time"
)

// ExpectedEffects describes the meter changes a patch author promises.
type ExpectedEffects struct {
	Deltas      map[string]float64 `json:"deltas" yaml:"deltas"`
	Description string             `json:"description" yaml:"description"`
}

// PatchPlan is a proposed change supplied by the caller. It is read-only to
// the pipeline.
type PatchPlan struct {
	Diff         string          `json:"diff" yaml:"diff"`
	Description  string          `json:"description" yaml:"description"`
	BaselineRisk float64         `json:"baseline_risk" yaml:"baseline_risk"`
	Effects      ExpectedEffects `json:"effects" yaml:"effects"`
	Alternatives []string        `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
}

// Meters is the snapshot of the two bounded game counters.
type Meters struct {
	Stability float64 `json:"stability" yaml:"stability"`
	Insight   float64 `json:"insight" yaml:"insight"`
}

// MeterMin and MeterMax bound every meter value.
const (
	MeterMin = 0.0
	MeterMax = 100.0
)

// Clamped returns the meters limited to [MeterMin, MeterMax].
func (m Meters) Clamped() Meters {
	return Meters{
		Stability: clampRange(m.Stability, MeterMin, MeterMax),
		Insight:   clampRange(m.Insight, MeterMin, MeterMax),
	}
}

// ValidationContext is the scenario state a patch is evaluated against.
type ValidationContext struct {
	Scenario        string  `json:"scenario" yaml:"scenario"`
	Meters          Meters  `json:"meters" yaml:"meters"`
	PlayerIntent    string  `json:"player_intent" yaml:"player_intent"`
	RiskTolerance   float64 `json:"risk_tolerance" yaml:"risk_tolerance"`
	EducationalMode bool    `json:"educational_mode" yaml:"educational_mode"`
}

// Normalized returns a copy with meters and tolerance clamped to their ranges.
func (c ValidationContext) Normalized() ValidationContext {
	c.Meters = c.Meters.Clamped()
	c.RiskTolerance = Clamp01(c.RiskTolerance)
	return c
}

// OperationKind is the type of a decomposed edit.
type OperationKind string

const (
	OpAdd      OperationKind = "add"
	OpRemove   OperationKind = "remove"
	OpModify   OperationKind = "modify"
	OpValidate OperationKind = "validate"
)

// Operation is one decomposed unit of change. Operations are created once per
// validation run and never mutated afterward.
type Operation struct {
	Kind      OperationKind `json:"kind"`
	Target    string        `json:"target"`
	Content   string        `json:"content,omitempty"`
	Line      int           `json:"line,omitempty"`
	ParsedAt  time.Time     `json:"parsed_at"`
	LooksSafe bool          `json:"looks_safe"`
}

// Label is the stable identifier used in results: kind:target[:line].
func (o Operation) Label() string {
	if o.Line > 0 {
		return fmt.Sprintf("%s:%s:%d", o.Kind, o.Target, o.Line)
	}
	return fmt.Sprintf("%s:%s", o.Kind, o.Target)
}

// Location renders target:line for violation reports.
func (o Operation) Location() string {
	if o.Line > 0 {
		return fmt.Sprintf("%s:%d", o.Target, o.Line)
	}
	return o.Target
}

// CodeExample pairs an unsafe snippet with its safe rewrite.
type CodeExample struct {
	Unsafe      string `json:"unsafe"`
	Safe        string `json:"safe"`
	Explanation string `json:"explanation"`
}

// EducationalContent is the teaching material for one violation type.
type EducationalContent struct {
	Type           ViolationType `json:"type"`
	Title          string        `json:"title"`
	Explanation    string        `json:"explanation"`
	Examples       []CodeExample `json:"examples,omitempty"`
	BestPractices  []string      `json:"best_practices"`
	CommonMistakes []string      `json:"common_mistakes"`
	FurtherReading []string      `json:"further_reading"`
}

// ValidationResult is the authoritative accept/reject decision artifact.
type ValidationResult struct {
	IsValid           bool                 `json:"is_valid"`
	RiskScore         float64              `json:"risk_score"`
	Violations        []SecurityViolation  `json:"violations"`
	Educational       []EducationalContent `json:"educational"`
	AllowedOperations []string             `json:"allowed_operations"`
	BlockedOperations []string             `json:"blocked_operations"`
	Errors            []string             `json:"errors,omitempty"`
}

// HasCritical reports whether any violation is Critical.
func (r ValidationResult) HasCritical() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// SandboxExecutionResult is what the pipeline returns for every request.
type SandboxExecutionResult struct {
	Success          bool             `json:"success"`
	Output           string           `json:"output"`
	Warnings         []string         `json:"warnings"`
	Errors           []string         `json:"errors"`
	ExecutionTime    time.Duration    `json:"execution_time"`
	MemoryUsage      int64            `json:"memory_usage"`
	Deterministic    bool             `json:"deterministic"`
	Security         ValidationResult `json:"security_validation"`
	RejectionMessage string           `json:"rejection_message,omitempty"`
	Events           []OutcomeEvent   `json:"events"`
	CacheKey         string           `json:"cache_key"`
}

// OutcomeKind classifies a compile event.
type OutcomeKind string

const (
	OutcomeSuccess           OutcomeKind = "success"
	OutcomeWarning           OutcomeKind = "warning"
	OutcomePerformanceImpact OutcomeKind = "performance-impact"
	OutcomeError             OutcomeKind = "error"
	OutcomeSecurityViolation OutcomeKind = "security-violation"
)

// OutcomeEvent is a discrete result event with meter deltas for the caller.
type OutcomeEvent struct {
	ID      string             `json:"id"`
	Kind    OutcomeKind        `json:"kind"`
	Message string             `json:"message"`
	Deltas  map[string]float64 `json:"deltas"`
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
