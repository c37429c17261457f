package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/patchguard/internal/audit"
	"github.com/ppiankov/patchguard/internal/config"
	"github.com/ppiankov/patchguard/internal/logging"
	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/report"
	"github.com/ppiankov/patchguard/internal/validator"
)

const safeDiff = "--- a/src/math.js\n+++ b/src/math.js\n@@ -1,0 +1,1 @@\n+const biggest = Math.max(a, b);\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func resetValidateFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		validateDiff, validateOld, validateNew = "", "", ""
		validateDescription, validateBaseline = "", 0
		validateFormat, validateRender = "text", true
	})
}

func testValidator(t *testing.T) *validator.Validator {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.WhitelistPath = filepath.Join(dir, "whitelist.yaml")
	cfg.PatternsPath = filepath.Join(dir, "patterns.yaml")
	v, err := validator.New(cfg, validator.WithLogger(logging.Nop()))
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestLoadPatchFileYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := writeFile(t, dir, "p.yaml", `diff: |
  --- a/a.js
  +++ b/a.js
  @@ -1,0 +1,1 @@
  +const x = 1;
description: set x
baseline_risk: 0.2
alternatives:
  - leave x unset
context:
  scenario: xss
  risk_tolerance: 0.4
`)
	jsonPath := writeFile(t, dir, "p.json", `{"diff": "+const y = 2;\n", "baseline_risk": 0.1}`)

	pf, err := loadPatchFile(yamlPath)
	if err != nil {
		t.Fatalf("loadPatchFile yaml: %v", err)
	}
	if pf.Description != "set x" || pf.BaselineRisk != 0.2 || len(pf.Alternatives) != 1 {
		t.Errorf("unexpected plan %+v", pf.PatchPlan)
	}
	if pf.Context == nil || pf.Context.Scenario != "xss" || pf.Context.RiskTolerance != 0.4 {
		t.Errorf("unexpected context %+v", pf.Context)
	}

	pf, err = loadPatchFile(jsonPath)
	if err != nil {
		t.Fatalf("loadPatchFile json: %v", err)
	}
	if !strings.Contains(pf.Diff, "const y = 2;") || pf.Context != nil {
		t.Errorf("unexpected json patch %+v", pf)
	}
}

func TestLoadPatchFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "diff: [unclosed"},
		{"missing diff", "description: nothing here\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml", tt.content)
			if _, err := loadPatchFile(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := loadPatchFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCollectInputs(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	withCtx := writeFile(t, dir, "a.yaml", "diff: \"+a();\\n\"\ncontext:\n  scenario: xss\n")
	plain := writeFile(t, dir, "b.yaml", "diff: \"+b();\\n\"\n")
	validateDiff = writeFile(t, dir, "c.diff", safeDiff)
	validateDescription = "from flags"
	validateBaseline = 0.3

	inputs, err := collectInputs([]string{withCtx, plain}, model.ValidationContext{Scenario: "default", PlayerIntent: "tidy"})
	if err != nil {
		t.Fatalf("collectInputs: %v", err)
	}
	if len(inputs) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(inputs))
	}
	if inputs[0].Context.Scenario != "xss" {
		t.Errorf("file context should win, got %+v", inputs[0].Context)
	}
	if inputs[1].Context.PlayerIntent != "tidy" {
		t.Errorf("flag context should apply, got %+v", inputs[1].Context)
	}
	if inputs[2].Plan.Diff != safeDiff || inputs[2].Plan.Description != "from flags" || inputs[2].Plan.BaselineRisk != 0.3 {
		t.Errorf("unexpected --diff input %+v", inputs[2].Plan)
	}
}

func TestCollectInputsOldNew(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	validateOld = writeFile(t, dir, "old.js", "const a = 1;\n")
	validateNew = writeFile(t, dir, "new.js", "const a = 1;\nconst b = 2;\n")

	inputs, err := collectInputs(nil, model.ValidationContext{})
	if err != nil {
		t.Fatalf("collectInputs: %v", err)
	}
	if len(inputs) != 1 || !strings.Contains(inputs[0].Plan.Diff, "+const b = 2;") {
		t.Fatalf("expected generated diff, got %+v", inputs)
	}

	validateNew = ""
	if _, err := collectInputs(nil, model.ValidationContext{}); err == nil {
		t.Error("expected error when --old is used without --new")
	}
}

func TestCollectInputsNothing(t *testing.T) {
	resetValidateFlags(t)
	if _, err := collectInputs(nil, model.ValidationContext{}); err == nil {
		t.Fatal("expected error with no inputs")
	}
}

func TestValidateAllKeepsOrder(t *testing.T) {
	v := testValidator(t)
	inputs := []patchInput{
		{Name: "safe", Plan: model.PatchPlan{Diff: safeDiff, BaselineRisk: 0.1}},
		{Name: "eval", Plan: model.PatchPlan{Diff: "--- a/a.js\n+++ b/a.js\n@@ -1,0 +1,1 @@\n+eval(x);\n"}},
		{Name: "safe-again", Plan: model.PatchPlan{Diff: safeDiff, BaselineRisk: 0.1}},
	}

	results, err := validateAll(context.Background(), v, inputs, 2)
	if err != nil {
		t.Fatalf("validateAll: %v", err)
	}
	want := []bool{true, false, true}
	for i, r := range results {
		if r.Name != inputs[i].Name {
			t.Errorf("result %d name = %q, want %q", i, r.Name, inputs[i].Name)
		}
		if r.Result.Success != want[i] {
			t.Errorf("%s success = %v, want %v", r.Name, r.Result.Success, want[i])
		}
	}
}

func TestValidateAllCancelled(t *testing.T) {
	v := testValidator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := validateAll(ctx, v, []patchInput{{Name: "x", Plan: model.PatchPlan{Diff: safeDiff}}}, 1); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestWriteResults(t *testing.T) {
	resetValidateFlags(t)
	results := []report.Named{{Name: "p.yaml", Result: &model.SandboxExecutionResult{
		Success:  true,
		Output:   "+ a.js:1 | const x = 1;",
		Security: model.ValidationResult{IsValid: true, RiskScore: 0.1},
	}}}

	var buf bytes.Buffer
	validateFormat = "json"
	if err := writeResults(&buf, results); err != nil {
		t.Fatalf("writeResults json: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	buf.Reset()
	validateFormat, validateRender = "markdown", false
	if err := writeResults(&buf, results); err != nil {
		t.Fatalf("writeResults markdown: %v", err)
	}
	if !strings.Contains(buf.String(), "## Patch accepted") {
		t.Errorf("unexpected markdown:\n%s", buf.String())
	}

	buf.Reset()
	validateFormat = "text"
	if err := writeResults(&buf, results); err != nil {
		t.Fatalf("writeResults text: %v", err)
	}
	if !strings.Contains(buf.String(), "1 of 1 patches accepted.") {
		t.Errorf("unexpected text:\n%s", buf.String())
	}

	validateFormat = "xml"
	if err := writeResults(&buf, results); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestContentMarkdown(t *testing.T) {
	c := model.EducationalContent{
		Type:          model.ViolationUnsafeEval,
		Title:         "Dynamic code evaluation",
		Explanation:   "eval runs strings as code",
		Examples:      []model.CodeExample{{Unsafe: "eval(s)", Safe: "JSON.parse(s)"}},
		BestPractices: []string{"avoid eval"},
	}
	md := contentMarkdown(c)
	for _, want := range []string{"# Dynamic code evaluation", "`unsafe-dynamic-eval`", "eval(s)", "JSON.parse(s)", "## Best practices", "- avoid eval"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Common mistakes") {
		t.Error("empty sections should be omitted")
	}
}

func TestRunValidateRejectionReturnsExitError(t *testing.T) {
	resetValidateFlags(t)
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.jsonl")
	configPath = writeFile(t, dir, "config.yaml", "audit_log: "+auditPath+"\n"+
		"whitelist_path: "+filepath.Join(dir, "whitelist.yaml")+"\n"+
		"patterns_path: "+filepath.Join(dir, "patterns.yaml")+"\n")
	t.Cleanup(func() { configPath = "" })

	validateDiff = writeFile(t, dir, "eval.diff", "--- a/a.js\n+++ b/a.js\n@@ -0,0 +1,1 @@\n+eval(x);\n")
	validateFormat = "json"

	validateCmd.SetContext(context.Background())
	err := runValidate(validateCmd, nil)

	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
	if r := audit.Verify(auditPath); !r.Valid || r.Lines != 1 {
		t.Errorf("expected one audited validation, got %+v", r)
	}
}
