// Package risk scores patches and decides acceptance.
package risk

import (
	"fmt"

	"github.com/ppiankov/patchguard/internal/model"
)

// DefaultRejectThreshold is the score at or above which a patch is rejected.
const DefaultRejectThreshold = 0.8

// SeverityWeights maps severity levels to score increments.
type SeverityWeights struct {
	Low      float64 `yaml:"low" json:"low"`
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultSeverityWeights returns the built-in increments.
func DefaultSeverityWeights() SeverityWeights {
	return SeverityWeights{
		Low:      0.1,
		Medium:   0.2,
		High:     0.3,
		Critical: 0.4,
	}
}

// WeightFor returns the increment for a severity level.
func (sw SeverityWeights) WeightFor(s model.Severity) float64 {
	switch s {
	case model.SeverityLow:
		return sw.Low
	case model.SeverityMedium:
		return sw.Medium
	case model.SeverityHigh:
		return sw.High
	case model.SeverityCritical:
		return sw.Critical
	default:
		return sw.Low
	}
}

// Scorer computes a deterministic, explainable risk score in [0,1].
type Scorer struct {
	Weights  SeverityWeights
	Factors  FactorTable
	RejectAt float64
}

// NewScorer returns a Scorer with built-in weights, factors and threshold.
func NewScorer() *Scorer {
	return &Scorer{
		Weights:  DefaultSeverityWeights(),
		Factors:  DefaultFactors(),
		RejectAt: DefaultRejectThreshold,
	}
}

// Breakdown itemizes a score.
type Breakdown struct {
	Baseline float64            `json:"baseline"`
	Severity float64            `json:"severity"`
	Factors  map[Factor]float64 `json:"factors,omitempty"`
	Total    float64            `json:"total"`
}

// Score returns baseline + severity increments + scenario factors, clamped.
func (s *Scorer) Score(baseline float64, violations []model.SecurityViolation, code, scenario string) float64 {
	return s.Breakdown(baseline, violations, code, scenario).Total
}

// Breakdown computes the score and its components.
func (s *Scorer) Breakdown(baseline float64, violations []model.SecurityViolation, code, scenario string) Breakdown {
	b := Breakdown{Baseline: model.Clamp01(baseline)}

	for _, v := range violations {
		b.Severity += s.Weights.WeightFor(v.Severity)
	}

	for _, f := range AllFactors {
		w := s.Factors.WeightFor(scenario, f)
		if w == 0 {
			continue
		}
		n := CountOccurrences(f, code)
		if n == 0 {
			continue
		}
		if n > MaxFactorOccurrences {
			n = MaxFactorOccurrences
		}
		if b.Factors == nil {
			b.Factors = make(map[Factor]float64)
		}
		b.Factors[f] = w * float64(n)
	}

	total := b.Baseline + b.Severity
	for _, f := range AllFactors {
		total += b.Factors[f]
	}
	b.Total = model.Clamp01(total)
	return b
}

// Decision is the accept/reject verdict for a score.
type Decision struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

// Decide rejects when the score reaches the threshold or any violation is
// Critical. Critical findings dominate regardless of score.
func (s *Scorer) Decide(score float64, violations []model.SecurityViolation) Decision {
	for _, v := range violations {
		if v.Severity == model.SeverityCritical {
			return Decision{Reason: fmt.Sprintf("critical %s finding", v.Type)}
		}
	}
	rejectAt := s.RejectAt
	if rejectAt <= 0 {
		rejectAt = DefaultRejectThreshold
	}
	if score >= rejectAt {
		return Decision{Reason: fmt.Sprintf("risk %.2f reaches threshold %.2f", score, rejectAt)}
	}
	return Decision{Accept: true, Reason: fmt.Sprintf("risk %.2f below threshold %.2f", score, rejectAt)}
}
