package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/risk"
)

// Named is a result labeled with its source (file name or request).
type Named struct {
	Name   string                        `json:"name"`
	Result *model.SandboxExecutionResult `json:"result"`
}

// FormatText renders results as human-readable text.
func FormatText(results []Named) string {
	var b strings.Builder

	accepted := 0
	for _, r := range results {
		res := r.Result
		status := "REJECT"
		if res.Success {
			status = "ACCEPT"
			accepted++
		}
		fmt.Fprintf(&b, "  %s  %s  risk %.2f (%s)\n", status, r.Name, res.Security.RiskScore, risk.Tier(res.Security.RiskScore))

		for _, v := range res.Security.Violations {
			fmt.Fprintf(&b, "    %-8s %-28s %s\n", v.Severity, v.Type, v.Location)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "    error: %s\n", e)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "    warning: %s\n", w)
		}
		if res.Success {
			fmt.Fprintf(&b, "    %d allowed, %d blocked, memory %s, time %s\n",
				len(res.Security.AllowedOperations), len(res.Security.BlockedOperations),
				humanize.IBytes(uint64(res.MemoryUsage)), res.ExecutionTime)
		}
	}

	fmt.Fprintf(&b, "\n%d of %d patches accepted.\n", accepted, len(results))
	return b.String()
}

// FormatJSON renders results as JSON.
func FormatJSON(results []Named) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}

// FormatMarkdown renders the rejection message for rejected results and the
// trace for accepted ones.
func FormatMarkdown(results []Named) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "# %s\n\n", r.Name)
		if !r.Result.Success {
			b.WriteString(r.Result.RejectionMessage)
			continue
		}
		fmt.Fprintf(&b, "## Patch accepted\n\n**Risk score:** %.2f\n\n", r.Result.Security.RiskScore)
		if len(r.Result.Warnings) > 0 {
			b.WriteString("### Warnings\n\n")
			for _, w := range r.Result.Warnings {
				fmt.Fprintf(&b, "- %s\n", w)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "```\n%s\n```\n", r.Result.Output)
	}
	return b.String()
}
