package model

// Severity classifies how dangerous a finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank maps severity to a comparable integer.
var SeverityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return SeverityRank[s] >= SeverityRank[other]
}

// ViolationType is the closed set of finding kinds.
type ViolationType string

const (
	ViolationCodeInjection      ViolationType = "code-injection"
	ViolationUnsafeEval         ViolationType = "unsafe-dynamic-eval"
	ViolationXSS                ViolationType = "cross-site-scripting"
	ViolationPrototypePollution ViolationType = "prototype-pollution"
	ViolationDangerousAPI       ViolationType = "dangerous-api"
	ViolationFilesystemAccess   ViolationType = "filesystem-access"
	ViolationNetworkAccess      ViolationType = "network-access"
	ViolationProcessAccess      ViolationType = "process-access"
	ViolationGlobalAccess       ViolationType = "global-access"
	ViolationUnsafeRegex        ViolationType = "unsafe-regex"
	ViolationBufferOverflow     ViolationType = "buffer-overflow"
	ViolationMemoryLeak         ViolationType = "memory-leak"
	ViolationInfiniteLoop       ViolationType = "infinite-loop"

	// Contextual variants, raised only by scenario-specific rules.
	ViolationPromptInjection ViolationType = "contextual-prompt-injection"
	ViolationDataLeak        ViolationType = "contextual-data-leak"
	ViolationAuthBypass      ViolationType = "contextual-auth-bypass"
	ViolationUnboundedGrowth ViolationType = "contextual-unbounded-growth"
)

// AllViolationTypes lists every known violation type in catalog order.
var AllViolationTypes = []ViolationType{
	ViolationCodeInjection,
	ViolationUnsafeEval,
	ViolationXSS,
	ViolationPrototypePollution,
	ViolationDangerousAPI,
	ViolationFilesystemAccess,
	ViolationNetworkAccess,
	ViolationProcessAccess,
	ViolationGlobalAccess,
	ViolationUnsafeRegex,
	ViolationBufferOverflow,
	ViolationMemoryLeak,
	ViolationInfiniteLoop,
	ViolationPromptInjection,
	ViolationDataLeak,
	ViolationAuthBypass,
	ViolationUnboundedGrowth,
}

// Valid reports whether t is a known violation type.
func (t ViolationType) Valid() bool {
	for _, known := range AllViolationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Contextual reports whether t is raised by scenario-specific rules.
func (t ViolationType) Contextual() bool {
	switch t {
	case ViolationPromptInjection, ViolationDataLeak, ViolationAuthBypass, ViolationUnboundedGrowth:
		return true
	default:
		return false
	}
}

// SecurityViolation is a typed static finding.
type SecurityViolation struct {
	Type         ViolationType `json:"type"`
	Severity     Severity      `json:"severity"`
	Description  string        `json:"description"`
	Location     string        `json:"location"`
	Explanation  string        `json:"explanation"`
	SuggestedFix string        `json:"suggested_fix"`
	Reference    string        `json:"reference,omitempty"`
	Scenario     string        `json:"scenario,omitempty"`
}

// MaxSeverity returns the most severe level among violations, or "" if none.
func MaxSeverity(violations []SecurityViolation) Severity {
	var top Severity
	for _, v := range violations {
		if top == "" || SeverityRank[v.Severity] > SeverityRank[top] {
			top = v.Severity
		}
	}
	return top
}
