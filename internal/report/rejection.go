// Package report renders validation results for people.
package report

import (
	"fmt"
	"strings"

	"github.com/ppiankov/patchguard/internal/model"
)

// RejectionMessage renders a Markdown explanation of why a patch was
// rejected. Results without violations (policy errors) list their errors.
func RejectionMessage(res model.ValidationResult, threshold float64, alternatives []string) string {
	var b strings.Builder

	b.WriteString("## Patch rejected\n\n")
	fmt.Fprintf(&b, "**Risk score:** %.2f (threshold %.2f)", res.RiskScore, threshold)
	if res.HasCritical() {
		b.WriteString(" with critical findings")
	}
	b.WriteString("\n\n")

	if len(res.Violations) == 0 {
		b.WriteString("### Errors\n\n")
		if len(res.Errors) == 0 {
			b.WriteString("- the patch did not pass validation\n")
		}
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("\n")
	}

	for _, sev := range model.Severities {
		var group []model.SecurityViolation
		for _, v := range res.Violations {
			if v.Severity == sev {
				group = append(group, v)
			}
		}
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n", severityHeading(sev))
		for _, v := range group {
			fmt.Fprintf(&b, "- **%s** at `%s`: %s\n", v.Type, v.Location, v.Description)
			if v.Explanation != "" {
				fmt.Fprintf(&b, "  - Why: %s\n", v.Explanation)
			}
			if v.SuggestedFix != "" {
				fmt.Fprintf(&b, "  - Fix: %s\n", v.SuggestedFix)
			}
		}
		b.WriteString("\n")
	}

	if len(res.BlockedOperations) > 0 || len(res.AllowedOperations) > 0 {
		b.WriteString("### Operations\n\n")
		for _, op := range res.BlockedOperations {
			fmt.Fprintf(&b, "- blocked `%s`\n", op)
		}
		for _, op := range res.AllowedOperations {
			fmt.Fprintf(&b, "- allowed `%s`\n", op)
		}
		b.WriteString("\n")
	}

	b.WriteString("### What you can do\n\n")
	seen := make(map[string]bool)
	for _, v := range res.Violations {
		if v.SuggestedFix == "" || seen[v.SuggestedFix] {
			continue
		}
		seen[v.SuggestedFix] = true
		fmt.Fprintf(&b, "- %s\n", v.SuggestedFix)
	}
	b.WriteString("- Keep each patch small and limited to whitelisted APIs.\n")
	b.WriteString("- Resubmit once the findings above are addressed.\n")
	if len(alternatives) > 0 {
		b.WriteString("\nAlternatives proposed with this patch:\n\n")
		for _, a := range alternatives {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	return b.String()
}

func severityHeading(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "Critical"
	case model.SeverityHigh:
		return "High"
	case model.SeverityMedium:
		return "Medium"
	case model.SeverityLow:
		return "Low"
	default:
		return string(s)
	}
}
