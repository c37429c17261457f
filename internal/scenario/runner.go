package scenario

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/validator"
)

// Run validates every case in s. Cases are independent; results may come
// from the validator's cache.
func Run(ctx context.Context, s *Scenario, v *validator.Validator) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
		Cases: []CaseResult{},
	}

	for i, c := range s.Cases {
		vctx := c.Context
		if vctx == (model.ValidationContext{}) {
			vctx = s.Context
		}

		res := v.Validate(ctx, c.Patch, vctx)
		cr := CaseResult{
			Index:      i + 1,
			Name:       c.Name,
			Valid:      res.Security.IsValid,
			RiskScore:  res.Security.RiskScore,
			Violations: violationTypes(res.Security.Violations),
		}
		if cr.Name == "" {
			cr.Name = fmt.Sprintf("case %d", i+1)
		}
		cr.Failures = check(c.Expect, res)

		if len(cr.Failures) == 0 {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result
}

func check(e Expect, res *model.SandboxExecutionResult) []string {
	var failures []string
	sec := res.Security

	if e.Valid != nil && sec.IsValid != *e.Valid {
		failures = append(failures, fmt.Sprintf("expected valid=%t, got %t", *e.Valid, sec.IsValid))
	}

	got := make(map[string]bool)
	for _, t := range violationTypes(sec.Violations) {
		got[t] = true
	}
	for _, t := range e.Violations {
		if !got[t] {
			failures = append(failures, fmt.Sprintf("expected violation %s", t))
		}
	}
	for _, t := range e.Absent {
		if got[t] {
			failures = append(failures, fmt.Sprintf("unexpected violation %s", t))
		}
	}

	if e.MaxRisk != nil && sec.RiskScore > *e.MaxRisk {
		failures = append(failures, fmt.Sprintf("risk %.2f above max %.2f", sec.RiskScore, *e.MaxRisk))
	}
	if e.MinRisk != nil && sec.RiskScore < *e.MinRisk {
		failures = append(failures, fmt.Sprintf("risk %.2f below min %.2f", sec.RiskScore, *e.MinRisk))
	}
	if e.Warnings && len(res.Warnings) == 0 {
		failures = append(failures, "expected warnings")
	}
	return failures
}

func violationTypes(vs []model.SecurityViolation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, string(v.Type))
	}
	return out
}

// Load reads a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and runs it through v.
func LoadAndRun(ctx context.Context, path string, v *validator.Validator) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	result := Run(ctx, s, v)
	result.File = path
	if result.Name == "" {
		result.Name = path
	}
	return result, nil
}
