// Package sandbox simulates accepted operations deterministically under
// resource limits. Nothing is ever executed.
package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/whitelist"
)

// Constraints bound a simulation run.
type Constraints struct {
	MaxLoops          int     `yaml:"max_loops" json:"max_loops"`
	MaxRecursionDepth int     `yaml:"max_recursion_depth" json:"max_recursion_depth"`
	PreviewLength     int     `yaml:"preview_length" json:"preview_length"`
	MinMemory         int64   `yaml:"min_memory" json:"min_memory"`
	MaxMemory         int64   `yaml:"max_memory" json:"max_memory"`
	ValidatePassRate  float64 `yaml:"validate_pass_rate" json:"validate_pass_rate"`
}

// DefaultConstraints returns the built-in limits.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxLoops:          3,
		MaxRecursionDepth: 10,
		PreviewLength:     50,
		MinMemory:         1 << 20,
		MaxMemory:         16 << 20,
		ValidatePassRate:  0.85,
	}
}

const (
	opBaseDuration   = 2 * time.Millisecond
	opJitterDuration = 3 * time.Millisecond
)

// blockedPatterns are refused even if upstream checks let them through.
var blockedPatterns = []string{
	"eval(",
	"Function(",
	"__proto__",
	"process.",
	"child_process",
	"require(",
	"import(",
	"document.write",
	"innerHTML",
	"outerHTML",
	"globalThis",
}

var loopRe = regexp.MustCompile(`\b(?:for|while)\s*\(|\bdo\s*\{|\.forEach\s*\(`)

// Executor runs simulations. It holds no per-run state and is safe for
// concurrent use; each Execute call seeds a fresh Source.
type Executor struct {
	Constraints Constraints
	Catalog     *whitelist.Catalog
	Estimator   RecursionEstimator
	Seed        uint32
	// NewSource overrides the generator; defaults to NewLCG.
	NewSource func(seed uint32) Source
}

// New returns an Executor with the default estimator.
func New(c Constraints, catalog *whitelist.Catalog, seed uint32) *Executor {
	if catalog == nil {
		catalog = whitelist.NewDefault()
	}
	return &Executor{
		Constraints: c,
		Catalog:     catalog,
		Estimator:   CallSiteEstimator{},
		Seed:        seed,
	}
}

// Execution is the trace and simulated resource usage of one run.
type Execution struct {
	Output      string
	Warnings    []string
	MemoryUsage int64
	Duration    time.Duration
	Executed    int
}

// Execute simulates ops in order. A failing check records a warning and
// skips only that operation.
func (e *Executor) Execute(ops []model.Operation, vctx model.ValidationContext, riskScore, baseline float64) Execution {
	c := e.Constraints
	src := e.source()
	estimator := e.Estimator
	if estimator == nil {
		estimator = CallSiteEstimator{}
	}

	local := make(map[string]bool)
	for _, op := range ops {
		for _, name := range whitelist.DeclaredFunctions(op.Content) {
			local[name] = true
		}
	}

	var (
		trace []string
		ex    Execution
	)
	for _, op := range ops {
		line, err := e.simulate(op, vctx.Scenario, local, estimator, src)
		if err != nil {
			ex.Warnings = append(ex.Warnings, fmt.Sprintf("%s skipped: %v", op.Label(), err))
			continue
		}
		if line.warning != "" {
			ex.Warnings = append(ex.Warnings, line.warning)
		}
		trace = append(trace, line.text)
		ex.Duration += opBaseDuration + time.Duration(src.Next()*float64(opJitterDuration)).Round(time.Microsecond)
		ex.Executed++
	}

	ex.MemoryUsage = simulatedMemory(c, riskScore, baseline)
	trace = append(trace, fmt.Sprintf("simulated %d/%d operations, memory %s, time %s",
		ex.Executed, len(ops), humanize.IBytes(uint64(ex.MemoryUsage)), ex.Duration))
	ex.Output = strings.Join(trace, "\n")
	return ex
}

type traceLine struct {
	text    string
	warning string
}

func (e *Executor) simulate(op model.Operation, scenario string, local map[string]bool, estimator RecursionEstimator, src Source) (line traceLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simulation panic: %v", r)
		}
	}()

	c := e.Constraints
	if op.Kind != model.OpRemove {
		for _, p := range blockedPatterns {
			if strings.Contains(op.Content, p) {
				return traceLine{}, fmt.Errorf("blocked pattern %q", p)
			}
		}
	}
	// Modify carries a prose description; only added lines are code.
	if op.Kind == model.OpAdd {
		if n := len(loopRe.FindAllStringIndex(op.Content, -1)); n > c.MaxLoops {
			return traceLine{}, fmt.Errorf("%d loops exceed limit %d", n, c.MaxLoops)
		}
		if d := estimator.EstimateDepth(op.Content); d > c.MaxRecursionDepth {
			return traceLine{}, fmt.Errorf("recursion estimate %d exceeds limit %d", d, c.MaxRecursionDepth)
		}
		if ok, reason := e.Catalog.Evaluate(op.Content, scenario, local); !ok {
			return traceLine{}, errors.New(reason)
		}
	}

	switch op.Kind {
	case model.OpAdd:
		return traceLine{text: fmt.Sprintf("+ %s | %s", op.Location(), preview(op.Content, c.PreviewLength))}, nil
	case model.OpRemove:
		return traceLine{text: fmt.Sprintf("- %s", op.Location())}, nil
	case model.OpModify:
		return traceLine{text: fmt.Sprintf("~ %s | %s", op.Location(), preview(op.Content, c.PreviewLength))}, nil
	case model.OpValidate:
		if src.Next() < c.ValidatePassRate {
			return traceLine{text: fmt.Sprintf("? %s | validation passed", op.Location())}, nil
		}
		return traceLine{
			text:    fmt.Sprintf("? %s | validation failed", op.Location()),
			warning: fmt.Sprintf("%s: validation check failed", op.Label()),
		}, nil
	default:
		return traceLine{}, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func (e *Executor) source() Source {
	if e.NewSource != nil {
		return e.NewSource(e.Seed)
	}
	return NewLCG(e.Seed)
}

// simulatedMemory interpolates between the memory bounds by the mean of
// baseline and risk.
func simulatedMemory(c Constraints, riskScore, baseline float64) int64 {
	combined := model.Clamp01((model.Clamp01(baseline) + model.Clamp01(riskScore)) / 2)
	span := c.MaxMemory - c.MinMemory
	if span < 0 {
		span = 0
	}
	return c.MinMemory + int64(float64(span)*combined)
}

func preview(content string, n int) string {
	s := strings.TrimSpace(content)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
