package sandbox

import (
	"regexp"
	"strings"

	"github.com/ppiankov/patchguard/internal/whitelist"
)

// RecursionEstimator bounds the recursion depth code could reach.
type RecursionEstimator interface {
	EstimateDepth(content string) int
}

// CallSiteEstimator is a heuristic upper bound, not a static analysis: for
// every function declared in the content it counts same-name call sites and
// reports the largest count. A function that calls itself once reports 1.
type CallSiteEstimator struct{}

// EstimateDepth implements RecursionEstimator.
func (CallSiteEstimator) EstimateDepth(content string) int {
	depth := 0
	for _, name := range whitelist.DeclaredFunctions(content) {
		if n := countCallSites(content, name); n > depth {
			depth = n
		}
	}
	return depth
}

// countCallSites counts "name(" occurrences that are not the declaration.
func countCallSites(content, name string) int {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`)
	n := 0
	for _, loc := range re.FindAllStringIndex(content, -1) {
		before := strings.TrimRight(content[:loc[0]], " \t*")
		if strings.HasSuffix(before, "function") {
			continue
		}
		if loc[0] > 0 && (content[loc[0]-1] == '.' || content[loc[0]-1] == '$') {
			continue
		}
		n++
	}
	return n
}
