package risk

import (
	"regexp"
	"strings"
)

// Factor is a code category that raises risk in proportion to its frequency.
type Factor string

const (
	FactorDynamicEvaluation  Factor = "dynamic-evaluation"
	FactorFunctionConstruct  Factor = "dynamic-function-construction"
	FactorMarkupManipulation Factor = "markup-manipulation"
	FactorNetworkAccess      Factor = "network-access"
	FactorStorageAccess      Factor = "persistent-storage-access"
)

// AllFactors lists the factors in scoring order.
var AllFactors = []Factor{
	FactorDynamicEvaluation,
	FactorFunctionConstruct,
	FactorMarkupManipulation,
	FactorNetworkAccess,
	FactorStorageAccess,
}

// MaxFactorOccurrences caps how many occurrences of one factor count.
const MaxFactorOccurrences = 5

// DefaultScenario is the FactorTable key applied to every scenario.
const DefaultScenario = "default"

var factorPatterns = map[Factor]*regexp.Regexp{
	FactorDynamicEvaluation:  regexp.MustCompile(`\beval\s*\(`),
	FactorFunctionConstruct:  regexp.MustCompile(`\bFunction\s*\(`),
	FactorMarkupManipulation: regexp.MustCompile(`innerHTML|outerHTML|document\.write|insertAdjacentHTML|dangerouslySetInnerHTML`),
	FactorNetworkAccess:      regexp.MustCompile(`\bfetch\s*\(|XMLHttpRequest|WebSocket|\baxios\b`),
	FactorStorageAccess:      regexp.MustCompile(`localStorage|sessionStorage|indexedDB|document\.cookie`),
}

// CountOccurrences counts non-overlapping matches of a factor in code.
func CountOccurrences(f Factor, code string) int {
	re, ok := factorPatterns[f]
	if !ok {
		return 0
	}
	return len(re.FindAllStringIndex(code, -1))
}

// FactorTable maps a scenario to per-factor weights. The "default" entry
// applies to every scenario; a scenario entry overrides individual factors.
type FactorTable map[string]map[Factor]float64

// DefaultFactors returns the built-in table.
func DefaultFactors() FactorTable {
	return FactorTable{
		DefaultScenario: {
			FactorDynamicEvaluation:  0.3,
			FactorFunctionConstruct:  0.3,
			FactorMarkupManipulation: 0.2,
			FactorNetworkAccess:      0.15,
			FactorStorageAccess:      0.1,
		},
		"xss": {
			FactorMarkupManipulation: 0.3,
		},
		"data-leak": {
			FactorNetworkAccess: 0.25,
			FactorStorageAccess: 0.2,
		},
	}
}

// WeightFor returns the weight of f under scenario, falling back to default.
func (ft FactorTable) WeightFor(scenario string, f Factor) float64 {
	key := strings.ToLower(strings.TrimSpace(scenario))
	if key != "" {
		if w, ok := ft[key][f]; ok {
			return w
		}
	}
	return ft[DefaultScenario][f]
}
