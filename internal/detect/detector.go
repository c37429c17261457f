// Package detect finds unsafe constructs in patch code.
package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/patchguard/internal/edu"
	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/whitelist"
)

// DefaultTarget names the scanned text when it has no file of its own.
const DefaultTarget = "patch"

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

type compiledContext struct {
	ContextRule
	re *regexp.Regexp
}

// Detector holds compiled detection tables. Built once, shared read-only
// across requests.
type Detector struct {
	core       []compiledRule
	contextual map[string][]compiledContext
	receivers  []string
	catalog    *whitelist.Catalog
	lib        *edu.Library
}

// New compiles the tables. Rules with unknown violation types or invalid
// patterns are rejected.
func New(t Tables, catalog *whitelist.Catalog, lib *edu.Library) (*Detector, error) {
	if catalog == nil {
		catalog = whitelist.NewDefault()
	}
	if lib == nil {
		lib = edu.NewLibrary()
	}
	d := &Detector{
		contextual: make(map[string][]compiledContext),
		receivers:  append([]string{}, t.SensitiveReceivers...),
		catalog:    catalog,
		lib:        lib,
	}

	for _, r := range t.Core {
		if !r.Type.Valid() {
			return nil, fmt.Errorf("rule %q: unknown violation type %q", r.Name, r.Type)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		d.core = append(d.core, compiledRule{Rule: r, re: re})
	}

	for _, r := range t.Contextual {
		if !r.Type.Valid() {
			return nil, fmt.Errorf("contextual rule for %q: unknown violation type %q", r.Scenario, r.Type)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("contextual rule for %q: %w", r.Scenario, err)
		}
		key := scenarioKey(r.Scenario)
		d.contextual[key] = append(d.contextual[key], compiledContext{ContextRule: r, re: re})
	}

	return d, nil
}

// NewDefault builds a Detector over DefaultTables. It panics only if the
// built-in tables are broken.
func NewDefault(catalog *whitelist.Catalog, lib *edu.Library) *Detector {
	d, err := New(DefaultTables, catalog, lib)
	if err != nil {
		panic(fmt.Sprintf("detect: default tables: %v", err))
	}
	return d
}

// Detect scans free-form code. Locations are reported as patch:line.
func (d *Detector) Detect(code string, vctx model.ValidationContext) []model.SecurityViolation {
	return d.scan(code, vctx.Scenario, lineLocator(DefaultTarget, code))
}

// DetectOperations scans the code the operations introduce (removals are
// skipped) as one text, so constructs split across added lines are still
// found. Each finding is located at the operation holding the start of the
// first match; every operation any match spans is flagged.
func (d *Detector) DetectOperations(ops []model.Operation, vctx model.ValidationContext) ([]model.SecurityViolation, map[int]bool) {
	var (
		lines  []string
		owner  []int
		starts []int
		offset int
	)
	for i, op := range ops {
		if op.Kind == model.OpRemove {
			continue
		}
		for _, l := range strings.Split(op.Content, "\n") {
			lines = append(lines, l)
			owner = append(owner, i)
			starts = append(starts, offset)
			offset += len(l) + 1
		}
	}

	flagged := make(map[int]bool)
	if len(lines) == 0 {
		return nil, flagged
	}
	lineAt := func(pos int) int {
		return sort.Search(len(starts), func(n int) bool { return starts[n] > pos }) - 1
	}
	locate := func(spans [][]int) string {
		for _, sp := range spans {
			for n := lineAt(sp[0]); n <= lineAt(max(sp[0], sp[1]-1)); n++ {
				flagged[owner[n]] = true
			}
		}
		return ops[owner[lineAt(spans[0][0])]].Location()
	}

	return d.scan(strings.Join(lines, "\n"), vctx.Scenario, locate), flagged
}

func (d *Detector) scan(code, scenario string, locate func(spans [][]int) string) []model.SecurityViolation {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	var out []model.SecurityViolation

	for _, r := range d.core {
		spans := r.re.FindAllStringIndex(code, -1)
		if spans == nil {
			continue
		}
		if !r.Critical && r.API != "" && d.catalog.IsAllowedContextually(r.API, scenario) {
			continue
		}
		sev := model.SeverityHigh
		if r.Critical {
			sev = model.SeverityCritical
		}
		out = append(out, d.violation(r.Type, sev, r.Description, locate(spans), ""))
	}

	for _, r := range d.contextual[scenarioKey(scenario)] {
		spans := r.re.FindAllStringIndex(code, -1)
		if spans == nil {
			continue
		}
		out = append(out, d.violation(r.Type, model.SeverityMedium, r.Description, locate(spans), r.Scenario))
	}

	for _, recv := range d.receivers {
		spans := literalSpans(code, recv)
		if spans == nil {
			continue
		}
		if name, ok := d.sensitiveUse(code, recv, scenario); ok {
			out = append(out, d.violation(model.ViolationDangerousAPI, model.SeverityLow,
				fmt.Sprintf("sensitive API %s used outside the whitelist", name), locate(spans), ""))
		}
	}

	return out
}

// sensitiveUse reports the first non-whitelisted use of a sensitive receiver.
func (d *Detector) sensitiveUse(code, recv, scenario string) (string, bool) {
	var calls []string
	for _, name := range whitelist.CallNames(code) {
		if name == recv || strings.HasPrefix(name, recv+".") {
			calls = append(calls, name)
		}
	}
	if len(calls) == 0 {
		if d.catalog.IsAllowedInContext(recv, scenario) {
			return "", false
		}
		return recv, true
	}
	for _, name := range calls {
		if !d.catalog.IsAllowedInContext(name, scenario) {
			return name, true
		}
	}
	return "", false
}

func (d *Detector) violation(t model.ViolationType, sev model.Severity, desc, loc, scenario string) model.SecurityViolation {
	explanation, fix, ref := d.lib.Explain(t)
	return model.SecurityViolation{
		Type:         t,
		Severity:     sev,
		Description:  desc,
		Location:     loc,
		Explanation:  explanation,
		SuggestedFix: fix,
		Reference:    ref,
		Scenario:     scenario,
	}
}

// lineLocator resolves a matched substring to the first line containing it.
func lineLocator(target, code string) func(spans [][]int) string {
	lines := strings.Split(code, "\n")
	return func(spans [][]int) string {
		match := code[spans[0][0]:spans[0][1]]
		if i := strings.IndexByte(match, '\n'); i >= 0 {
			match = match[:i]
		}
		for n, l := range lines {
			if strings.Contains(l, match) {
				return fmt.Sprintf("%s:%d", target, n+1)
			}
		}
		return target
	}
}

// literalSpans returns the positions of every occurrence of sub in s.
func literalSpans(s, sub string) [][]int {
	var spans [][]int
	for from := 0; ; {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return spans
		}
		spans = append(spans, []int{from + i, from + i + len(sub)})
		from += i + len(sub)
	}
}

func scenarioKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
