package mcp

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/patchguard/internal/config"
	"github.com/ppiankov/patchguard/internal/logging"
	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/validator"
)

func newTestServer(t *testing.T, scenario string) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.WhitelistPath = filepath.Join(dir, "whitelist.yaml")
	cfg.PatternsPath = filepath.Join(dir, "patterns.yaml")

	v, err := validator.New(cfg, validator.WithLogger(logging.Nop()))
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	s := NewWithValidator(v, scenario)
	t.Cleanup(func() { s.Close() })
	return s
}

func diffFor(line string) string {
	return "--- a/src/app.js\n+++ b/src/app.js\n@@ -1,0 +1,1 @@\n+" + line + "\n"
}

func TestValidateAccepted(t *testing.T) {
	s := newTestServer(t, "")

	result, out, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, ValidateInput{
		Diff:         diffFor("const biggest = Math.max(a, b);"),
		BaselineRisk: 0.1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if !out.Valid || out.Trace == "" {
		t.Fatalf("expected accepted result with trace, got %+v", out)
	}
	if out.Tier != "safe" {
		t.Errorf("tier = %q, want safe", out.Tier)
	}
	if len(out.AllowedOperations) != 1 || out.AllowedOperations[0] != "add:src/app.js:1" {
		t.Errorf("unexpected allowed operations %v", out.AllowedOperations)
	}
}

func TestValidateRejected(t *testing.T) {
	s := newTestServer(t, "")

	result, out, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, ValidateInput{
		Diff:         diffFor("const cfg = eval(userInput);"),
		Alternatives: []string{"parse with JSON.parse"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for rejected patch")
	}
	if out.Valid {
		t.Fatal("expected valid=false")
	}
	if len(out.Violations) == 0 || out.Violations[0].Type != string(model.ViolationUnsafeEval) {
		t.Fatalf("expected unsafe eval finding, got %+v", out.Violations)
	}
	if out.Violations[0].Severity != string(model.SeverityCritical) {
		t.Errorf("severity = %s, want critical", out.Violations[0].Severity)
	}
	if !strings.Contains(out.RejectionMessage, "parse with JSON.parse") {
		t.Errorf("rejection message should list alternatives:\n%s", out.RejectionMessage)
	}
}

func TestValidateDefaultScenario(t *testing.T) {
	s := newTestServer(t, "xss")
	in := ValidateInput{Diff: diffFor("const input = document.getElementById(id);"), BaselineRisk: 0.1}

	_, scoped, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in.Scenario = "default"
	_, explicit, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scoped.CacheKey == explicit.CacheKey {
		t.Error("server scenario should apply when the request names none")
	}
}

func TestValidateEducationalMode(t *testing.T) {
	s := newTestServer(t, "")

	_, out, err := s.handleValidate(context.Background(), &mcpsdk.CallToolRequest{}, ValidateInput{
		Diff:            diffFor("element.innerHTML = userInput;"),
		BaselineRisk:    0.1,
		EducationalMode: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Lessons) == 0 {
		t.Error("educational mode should attach lessons")
	}
}

func TestExplain(t *testing.T) {
	s := newTestServer(t, "")

	_, out, err := s.handleExplain(context.Background(), &mcpsdk.CallToolRequest{}, ExplainInput{
		Type: string(model.ViolationXSS),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Title == "" || out.Explanation == "" || len(out.BestPractices) == 0 {
		t.Errorf("incomplete content %+v", out)
	}
}

func TestExplainUnknownType(t *testing.T) {
	s := newTestServer(t, "")

	if _, _, err := s.handleExplain(context.Background(), &mcpsdk.CallToolRequest{}, ExplainInput{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	ct, st := mcpsdk.NewInMemoryTransports()
	ss, err := s.mcpServer.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	defer ss.Close()

	c := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil)
	cs, err := c.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer cs.Close()

	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"patchguard_validate", "patchguard_explain"} {
		if !names[want] {
			t.Errorf("tool %s not registered (have %v)", want, names)
		}
	}

	call, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      "patchguard_explain",
		Arguments: map[string]any{"type": string(model.ViolationUnsafeEval)},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if call.IsError {
		t.Errorf("explain call failed: %+v", call.Content)
	}
}
