package scenario

import "github.com/ppiankov/patchguard/internal/model"

// Expect lists the assertions for one case. Unset fields are not checked.
type Expect struct {
	Valid      *bool    `yaml:"valid,omitempty"`
	Violations []string `yaml:"violations,omitempty"` // types that must be reported
	Absent     []string `yaml:"absent,omitempty"`     // types that must not be reported
	MaxRisk    *float64 `yaml:"max_risk,omitempty"`
	MinRisk    *float64 `yaml:"min_risk,omitempty"`
	Warnings   bool     `yaml:"warnings,omitempty"` // at least one warning
}

// Case is one patch and its expected verdict.
type Case struct {
	Name    string                  `yaml:"name"`
	Patch   model.PatchPlan         `yaml:"patch"`
	Context model.ValidationContext `yaml:"context"`
	Expect  Expect                  `yaml:"expect"`
}

// Scenario is a named collection of patch cases. Context applies to every
// case that does not set its own.
type Scenario struct {
	Name    string                  `yaml:"name"`
	Context model.ValidationContext `yaml:"context"`
	Cases   []Case                  `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one case.
type CaseResult struct {
	Index      int      `json:"index"`
	Name       string   `json:"name"`
	Passed     bool     `json:"passed"`
	Valid      bool     `json:"valid"`
	RiskScore  float64  `json:"risk_score"`
	Violations []string `json:"violations"`
	Failures   []string `json:"failures,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
