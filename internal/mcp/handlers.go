package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/risk"
)

// ValidateInput defines parameters for the patchguard_validate tool.
type ValidateInput struct {
	Diff            string   `json:"diff" jsonschema:"unified diff to validate"`
	Description     string   `json:"description,omitempty" jsonschema:"what the patch is meant to do"`
	BaselineRisk    float64  `json:"baseline_risk,omitempty" jsonschema:"author-estimated risk in [0,1]"`
	Alternatives    []string `json:"alternatives,omitempty" jsonschema:"other approaches to list if the patch is rejected"`
	Scenario        string   `json:"scenario,omitempty" jsonschema:"scenario id selecting contextual rules (e.g. xss, sql-injection)"`
	Intent          string   `json:"intent,omitempty" jsonschema:"free-text intent of the author"`
	RiskTolerance   float64  `json:"risk_tolerance,omitempty" jsonschema:"risk above which a warning is added, in [0,1]"`
	EducationalMode bool     `json:"educational_mode,omitempty" jsonschema:"include full teaching material for every finding"`
}

// ValidateOutput summarizes the validation result.
type ValidateOutput struct {
	Valid             bool            `json:"valid"`
	RiskScore         float64         `json:"risk_score"`
	Tier              string          `json:"tier"`
	Violations        []ViolationItem `json:"violations"`
	AllowedOperations []string        `json:"allowed_operations"`
	BlockedOperations []string        `json:"blocked_operations"`
	Warnings          []string        `json:"warnings,omitempty"`
	Errors            []string        `json:"errors,omitempty"`
	Trace             string          `json:"trace,omitempty"`
	RejectionMessage  string          `json:"rejection_message,omitempty"`
	Lessons           []string        `json:"lessons,omitempty"`
	CacheKey          string          `json:"cache_key"`
}

// ViolationItem describes a single finding.
type ViolationItem struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Location string `json:"location"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// ExplainInput defines parameters for the patchguard_explain tool.
type ExplainInput struct {
	Type string `json:"type" jsonschema:"violation type (e.g. cross-site-scripting, unsafe-dynamic-eval)"`
}

// ExplainOutput carries the teaching material for one violation type.
type ExplainOutput struct {
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Explanation    string   `json:"explanation"`
	BestPractices  []string `json:"best_practices"`
	CommonMistakes []string `json:"common_mistakes"`
	FurtherReading []string `json:"further_reading"`
	Examples       []string `json:"examples,omitempty"`
}

func (s *Server) handleValidate(ctx context.Context, req *mcpsdk.CallToolRequest, input ValidateInput) (*mcpsdk.CallToolResult, ValidateOutput, error) {
	scenario := input.Scenario
	if scenario == "" {
		scenario = s.scenario
	}
	plan := model.PatchPlan{
		Diff:         input.Diff,
		Description:  input.Description,
		BaselineRisk: input.BaselineRisk,
		Alternatives: input.Alternatives,
	}
	vctx := model.ValidationContext{
		Scenario:        scenario,
		PlayerIntent:    input.Intent,
		RiskTolerance:   input.RiskTolerance,
		EducationalMode: input.EducationalMode,
	}

	res := s.v.Validate(ctx, plan, vctx)
	out := toOutput(res)
	if !res.Success {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleExplain(ctx context.Context, req *mcpsdk.CallToolRequest, input ExplainInput) (*mcpsdk.CallToolResult, ExplainOutput, error) {
	t := model.ViolationType(input.Type)
	if !t.Valid() {
		return nil, ExplainOutput{}, fmt.Errorf("unknown violation type %q", input.Type)
	}
	c := s.v.Library().Content(t)

	out := ExplainOutput{
		Type:           string(c.Type),
		Title:          c.Title,
		Explanation:    c.Explanation,
		BestPractices:  c.BestPractices,
		CommonMistakes: c.CommonMistakes,
		FurtherReading: c.FurtherReading,
	}
	for _, ex := range c.Examples {
		out.Examples = append(out.Examples, fmt.Sprintf("unsafe:\n%s\nsafe:\n%s\n%s", ex.Unsafe, ex.Safe, ex.Explanation))
	}
	return nil, out, nil
}

func toOutput(res *model.SandboxExecutionResult) ValidateOutput {
	sec := res.Security
	out := ValidateOutput{
		Valid:             res.Success,
		RiskScore:         sec.RiskScore,
		Tier:              risk.Tier(sec.RiskScore),
		Violations:        make([]ViolationItem, 0, len(sec.Violations)),
		AllowedOperations: sec.AllowedOperations,
		BlockedOperations: sec.BlockedOperations,
		Warnings:          res.Warnings,
		Errors:            res.Errors,
		Trace:             res.Output,
		RejectionMessage:  res.RejectionMessage,
		CacheKey:          res.CacheKey,
	}
	for _, v := range sec.Violations {
		out.Violations = append(out.Violations, ViolationItem{
			Type:     string(v.Type),
			Severity: string(v.Severity),
			Location: v.Location,
			Message:  v.Description,
			Fix:      v.SuggestedFix,
		})
	}
	for _, c := range sec.Educational {
		out.Lessons = append(out.Lessons, c.Title)
	}
	return out
}
