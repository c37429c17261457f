package whitelist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBaseAPIsAllowed(t *testing.T) {
	c := NewDefault()
	for _, name := range []string{"Math.max", "console.log", "JSON.parse", "Object.keys", "items.map", ".filter", "assert.equal"} {
		if !c.IsAPIAllowed(name) {
			t.Errorf("expected %q to be allowed", name)
		}
	}
}

func TestDangerousAPIsDenied(t *testing.T) {
	c := NewDefault()
	for _, name := range []string{"eval", "Function", "fetch", "require", "child_process.exec", "setInterval", "localStorage.setItem"} {
		if c.IsAPIAllowed(name) {
			t.Errorf("expected %q to be denied", name)
		}
	}
}

func TestContextualAllowanceWinsOverDeny(t *testing.T) {
	c := NewDefault()

	if c.IsAllowedInContext("setInterval", "") {
		t.Error("setInterval should be denied without a scenario")
	}
	if !c.IsAllowedInContext("setInterval", "memory-leak") {
		t.Error("setInterval should be allowed in memory-leak scenario")
	}
	if !c.IsAllowedInContext("window.addEventListener", "memory-leak") {
		t.Error("bare allowance should match as a method")
	}
	if c.IsAllowedInContext("setInterval", "xss") {
		t.Error("allowance must not leak into other scenarios")
	}
	if !c.IsAllowedInContext("Math.max", "memory-leak") {
		t.Error("base whitelist should still apply inside a scenario")
	}
}

func TestContextualAllowancesCaseInsensitive(t *testing.T) {
	c := NewDefault()
	if len(c.ContextualAllowances("Memory-Leak")) == 0 {
		t.Error("expected allowances for mixed-case scenario")
	}
	if c.ContextualAllowances("") != nil {
		t.Error("expected nil allowances for empty scenario")
	}
}

func TestIsOperationAllowed(t *testing.T) {
	c := NewDefault()
	if !c.IsOperationAllowed(ConstructReturn, "") {
		t.Error("return should be allowed")
	}
	if c.IsOperationAllowed(ConstructImport, "") {
		t.Error("import should not be allowed by default")
	}
	if c.IsOperationAllowed(ConstructUnknown, "") {
		t.Error("unknown constructs should not be allowed")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want ConstructKind
	}{
		{"const x = 1;", ConstructDeclaration},
		{"export const x = 1;", ConstructDeclaration},
		{"function clamp(v) {", ConstructDeclaration},
		{"if (v > 10) {", ConstructConditional},
		{"} else {", ConstructConditional},
		{"for (const x of xs) {", ConstructLoop},
		{"return Math.max(0, v);", ConstructReturn},
		{"throw new Error('bad');", ConstructThrow},
		{"total += x;", ConstructAssignment},
		{"count++;", ConstructAssignment},
		{"el.innerHTML = userInput;", ConstructAssignment},
		{"console.log(v);", ConstructCall},
		{"expect(x).toBe(1);", ConstructAssertion},
		{"// eslint-disable-next-line no-console", ConstructLintMarker},
		{"// just a note", ConstructComment},
		{"});", ConstructBlock},
		{"", ConstructBlock},
		{"import fs from 'fs';", ConstructImport},
		{"x == y", ConstructUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.line); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.line, got, tt.want)
		}
	}
}

func TestCallNames(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"console.log(Math.max(a, b));", []string{"console.log", "Math.max"}},
		{"items.filter(x => x).map(f);", []string{"items.filter", ".map"}},
		{"function clamp(v) { return v; }", nil},
		{"if (ok) { run(); }", []string{"run"}},
		{`log("eval(x) is bad")`, []string{"log"}},
		{"x = 1; // call(y)", nil},
	}
	for _, tt := range tests {
		got := CallNames(tt.line)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("CallNames(%q) mismatch (-want +got):\n%s", tt.line, diff)
		}
	}
}

func TestDeclaredFunctions(t *testing.T) {
	got := DeclaredFunctions("function helper(a) {}; const fmt = (x) => x; let g = async function () {}")
	want := []string{"helper", "fmt", "g"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DeclaredFunctions mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate(t *testing.T) {
	c := NewDefault()

	if ok, reason := c.Evaluate("return Math.max(0, v);", "", nil); !ok {
		t.Errorf("expected allowed, got %s", reason)
	}
	if ok, _ := c.Evaluate("helper(v);", "", nil); ok {
		t.Error("unknown call should be blocked")
	}
	if ok, reason := c.Evaluate("helper(v);", "", map[string]bool{"helper": true}); !ok {
		t.Errorf("local function should be allowed, got %s", reason)
	}
	if ok, _ := c.Evaluate("import fs from 'fs';", "", nil); ok {
		t.Error("import should be blocked")
	}
	if ok, reason := c.Evaluate("const t = setInterval(tick, 1000);", "memory-leak", nil); !ok {
		t.Errorf("contextual call should be allowed, got %s", reason)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.IsAPIAllowed("Math.max") {
		t.Error("expected default whitelist")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist.yaml")
	data := `
apis:
  - lodash.clamp
construct_kinds:
  - import
contextual:
  memory-leak:
    - FinalizationRegistry
  websockets:
    - WebSocket
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !c.IsAPIAllowed("lodash.clamp") {
		t.Error("expected overlay API")
	}
	if !c.IsAPIAllowed("Math.max") {
		t.Error("overlay must keep defaults")
	}
	if !c.IsOperationAllowed(ConstructImport, "") {
		t.Error("expected overlay construct kind")
	}
	if !c.IsAllowedInContext("FinalizationRegistry", "memory-leak") || !c.IsAllowedInContext("setInterval", "memory-leak") {
		t.Error("expected merged memory-leak allowances")
	}
	if !c.IsAllowedInContext("WebSocket", "websockets") {
		t.Error("expected new scenario allowance")
	}
	if len(DefaultTables.Contextual["memory-leak"]) != len(NewDefault().ContextualAllowances("memory-leak")) {
		t.Error("merge must not modify DefaultTables")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("apis: [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
