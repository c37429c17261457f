// Package whitelist holds the allowlist tables that decide which code
// constructs and API calls a patch may contain.
package whitelist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConstructKind is the structural category of one line of code.
type ConstructKind string

const (
	ConstructDeclaration ConstructKind = "declaration"
	ConstructConditional ConstructKind = "conditional"
	ConstructLoop        ConstructKind = "loop"
	ConstructReturn      ConstructKind = "return"
	ConstructThrow       ConstructKind = "throw"
	ConstructAssignment  ConstructKind = "assignment"
	ConstructCall        ConstructKind = "call"
	ConstructAssertion   ConstructKind = "assertion"
	ConstructLintMarker  ConstructKind = "lint-marker"
	ConstructComment     ConstructKind = "comment"
	ConstructBlock       ConstructKind = "block"
	ConstructImport      ConstructKind = "import"
	ConstructUnknown     ConstructKind = "unknown"
)

// Tables holds the raw allowlist entries.
//
// API entries match call names in four forms:
//   - "Math.max"   exact name
//   - "assert.*"   any name under the prefix
//   - ".map"       method on any receiver
//   - "setTimeout" bare name, also matched as a method ("window.setTimeout")
type Tables struct {
	ConstructKinds []ConstructKind     `yaml:"construct_kinds"`
	APIs           []string            `yaml:"apis"`
	Contextual     map[string][]string `yaml:"contextual"`
}

// Catalog answers allowlist queries. It is immutable after construction and
// safe for concurrent use.
type Catalog struct {
	kinds      map[ConstructKind]bool
	apis       []string
	contextual map[string][]string
	raw        Tables
}

// New builds a Catalog from raw tables.
func New(t Tables) *Catalog {
	c := &Catalog{
		kinds:      make(map[ConstructKind]bool, len(t.ConstructKinds)),
		contextual: make(map[string][]string, len(t.Contextual)),
		raw:        t,
	}
	for _, k := range t.ConstructKinds {
		c.kinds[k] = true
	}
	c.apis = append(c.apis, t.APIs...)
	for scenario, allow := range t.Contextual {
		key := strings.ToLower(strings.TrimSpace(scenario))
		c.contextual[key] = append(c.contextual[key], allow...)
	}
	return c
}

// NewDefault builds a Catalog from DefaultTables.
func NewDefault() *Catalog {
	return New(DefaultTables)
}

// Load reads a YAML overlay and merges it on top of DefaultTables.
// Falls back to defaults if the file doesn't exist.
func Load(path string) (*Catalog, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewDefault(), nil
		}
		path = filepath.Join(home, ".patchguard", "whitelist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, fmt.Errorf("read whitelist: %w", err)
	}

	var overlay Tables
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse whitelist %s: %w", path, err)
	}

	return New(Merge(DefaultTables, overlay)), nil
}

// Merge returns base with every overlay entry appended.
func Merge(base, overlay Tables) Tables {
	out := Tables{
		ConstructKinds: append(append([]ConstructKind{}, base.ConstructKinds...), overlay.ConstructKinds...),
		APIs:           append(append([]string{}, base.APIs...), overlay.APIs...),
		Contextual:     make(map[string][]string, len(base.Contextual)+len(overlay.Contextual)),
	}
	for k, v := range base.Contextual {
		out.Contextual[k] = append([]string{}, v...)
	}
	for k, v := range overlay.Contextual {
		out.Contextual[k] = append(out.Contextual[k], v...)
	}
	return out
}

// IsOperationAllowed reports whether a construct kind is allowed, consulting
// the scenario's allowances first.
func (c *Catalog) IsOperationAllowed(kind ConstructKind, scenario string) bool {
	for _, a := range c.ContextualAllowances(scenario) {
		if a == string(kind) {
			return true
		}
	}
	return c.kinds[kind]
}

// IsAPIAllowed reports whether name is on the base API whitelist.
func (c *Catalog) IsAPIAllowed(name string) bool {
	for _, p := range c.apis {
		if matchAPI(p, name) {
			return true
		}
	}
	return false
}

// ContextualAllowances returns the extra allowances for a scenario, or nil.
func (c *Catalog) ContextualAllowances(scenario string) []string {
	if scenario == "" {
		return nil
	}
	return c.contextual[strings.ToLower(strings.TrimSpace(scenario))]
}

// IsAllowedContextually reports whether the scenario's allowances cover name.
func (c *Catalog) IsAllowedContextually(name, scenario string) bool {
	for _, p := range c.ContextualAllowances(scenario) {
		if matchAPI(p, name) {
			return true
		}
	}
	return false
}

// IsAllowedInContext applies the lookup order: contextual allowance, then
// base whitelist, then deny.
func (c *Catalog) IsAllowedInContext(name, scenario string) bool {
	if c.IsAllowedContextually(name, scenario) {
		return true
	}
	return c.IsAPIAllowed(name)
}

// Evaluate decides whether one line of code passes the allowlist. Names in
// local are functions declared by the patch itself and are always allowed.
// Returns (allowed, reason).
func (c *Catalog) Evaluate(content, scenario string, local map[string]bool) (bool, string) {
	kind := Classify(content)
	if !c.IsOperationAllowed(kind, scenario) {
		return false, fmt.Sprintf("construct %q is not whitelisted", kind)
	}
	for _, name := range CallNames(content) {
		if local[strings.TrimPrefix(name, ".")] {
			continue
		}
		if !c.IsAllowedInContext(name, scenario) {
			return false, fmt.Sprintf("call %q is not whitelisted", name)
		}
	}
	return true, ""
}

// Scenarios lists the scenarios that carry contextual allowances, sorted.
func (c *Catalog) Scenarios() []string {
	out := make([]string, 0, len(c.contextual))
	for k := range c.contextual {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Raw returns the tables the catalog was built from.
func (c *Catalog) Raw() Tables {
	return c.raw
}

func matchAPI(pattern, name string) bool {
	switch {
	case pattern == "":
		return false
	case pattern == name:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "."):
		return strings.HasSuffix(name, pattern)
	case !strings.Contains(pattern, "."):
		return strings.HasSuffix(name, "."+pattern)
	}
	return false
}

var (
	stringLitRe = regexp.MustCompile("\"(?:[^\"\\\\]|\\\\.)*\"|'(?:[^'\\\\]|\\\\.)*'|`(?:[^`\\\\]|\\\\.)*`")
	callRe      = regexp.MustCompile(`([A-Za-z_$][\w$]*(?:\s*\.\s*[A-Za-z_$][\w$]*)*)\s*\(`)
	declFuncRe  = regexp.MustCompile(`(?:function\s*\*?\s*([A-Za-z_$][\w$]*)|(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s*)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>))`)
	assignRe    = regexp.MustCompile(`(?:^|[^=!<>])(?:[+\-*/%&|^]|\*\*|<<|>>|\?\?)?=(?:[^=]|$)`)
	wordRe      = regexp.MustCompile(`^[A-Za-z_$][\w$]*`)
)

// callKeywords look like calls but are language syntax.
var callKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"function": true, "return": true, "typeof": true, "await": true,
	"do": true, "else": true, "with": true, "yield": true, "super": true,
}

// stripLiterals blanks string literals and trailing line comments so their
// contents are not mistaken for code.
func stripLiterals(content string) string {
	s := stringLitRe.ReplaceAllString(content, `""`)
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	return s
}

// CallNames extracts the called names in content, in order of appearance.
// Chained method calls are reported with a leading dot (".map").
func CallNames(content string) []string {
	s := stripLiterals(content)
	var out []string
	for _, m := range callRe.FindAllStringSubmatchIndex(s, -1) {
		name := strings.Join(strings.Fields(s[m[2]:m[3]]), "")
		if callKeywords[name] {
			continue
		}
		before := strings.TrimRight(s[:m[2]], " \t")
		if strings.HasSuffix(before, "function") || strings.HasSuffix(before, "function*") {
			continue
		}
		if strings.HasSuffix(before, ".") || strings.HasSuffix(before, "?.") {
			name = "." + name
		}
		out = append(out, name)
	}
	return out
}

// DeclaredFunctions returns the names of functions declared in content.
func DeclaredFunctions(content string) []string {
	s := stripLiterals(content)
	var out []string
	for _, m := range declFuncRe.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else if m[2] != "" {
			out = append(out, m[2])
		}
	}
	return out
}

// Classify maps one line of code to its structural construct.
func Classify(content string) ConstructKind {
	t := strings.TrimSpace(content)
	if t == "" || strings.Trim(t, "{}();, \t") == "" {
		return ConstructBlock
	}

	if strings.HasPrefix(t, "//") || strings.HasPrefix(t, "/*") || strings.HasPrefix(t, "*") {
		lower := strings.ToLower(t)
		for _, marker := range lintMarkers {
			if strings.Contains(lower, marker) {
				return ConstructLintMarker
			}
		}
		return ConstructComment
	}
	if strings.HasPrefix(t, "'use strict'") || strings.HasPrefix(t, `"use strict"`) {
		return ConstructLintMarker
	}

	lead := strings.TrimLeft(t, "} \t")
	word := wordRe.FindString(lead)
	switch word {
	case "import", "export":
		if word == "export" && !strings.Contains(lead, " from ") {
			rest := strings.TrimSpace(strings.TrimPrefix(lead, "export"))
			rest = strings.TrimSpace(strings.TrimPrefix(rest, "default"))
			return Classify(rest)
		}
		if word == "import" && strings.HasPrefix(strings.TrimSpace(lead[len(word):]), "(") {
			break
		}
		return ConstructImport
	case "const", "let", "var", "function", "class", "async", "type", "interface", "enum":
		return ConstructDeclaration
	case "if", "else", "switch", "case", "default":
		return ConstructConditional
	case "for", "while", "do", "break", "continue":
		return ConstructLoop
	case "return":
		return ConstructReturn
	case "throw":
		return ConstructThrow
	case "try", "catch", "finally":
		return ConstructBlock
	case "expect", "assert":
		return ConstructAssertion
	}

	s := stripLiterals(t)
	if assignRe.MatchString(s) || strings.Contains(s, "++") || strings.Contains(s, "--") {
		return ConstructAssignment
	}
	if callRe.MatchString(s) {
		return ConstructCall
	}
	return ConstructUnknown
}

var lintMarkers = []string{
	"eslint",
	"prettier-ignore",
	"@ts-",
	"istanbul ignore",
	"jshint",
	"noqa",
}
