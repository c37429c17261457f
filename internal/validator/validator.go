// Package validator runs a patch through decomposition, detection, scoring
// and simulation, and caches the result.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/patchguard/internal/alert"
	"github.com/ppiankov/patchguard/internal/audit"
	"github.com/ppiankov/patchguard/internal/cache"
	"github.com/ppiankov/patchguard/internal/config"
	"github.com/ppiankov/patchguard/internal/decompose"
	"github.com/ppiankov/patchguard/internal/detect"
	"github.com/ppiankov/patchguard/internal/edu"
	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/outcome"
	"github.com/ppiankov/patchguard/internal/report"
	"github.com/ppiankov/patchguard/internal/risk"
	"github.com/ppiankov/patchguard/internal/sandbox"
	"github.com/ppiankov/patchguard/internal/whitelist"
)

// Validator is safe for concurrent use. Identical concurrent requests are
// computed once.
type Validator struct {
	cfg        *config.Config
	configHash string
	logger     *zap.Logger

	catalog  *whitelist.Catalog
	library  *edu.Library
	detector *detect.Detector
	scorer   *risk.Scorer
	executor *sandbox.Executor
	events   *outcome.Generator

	store     cache.Store
	audit     *audit.Log
	ownsAudit bool
	alerts    *alert.Dispatcher

	group singleflight.Group
}

// New builds a Validator from cfg. Catalog files named in cfg are loaded
// unless an option supplies the component.
func New(cfg *config.Config, opts ...Option) (*Validator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	v := &Validator{
		cfg:     cfg,
		logger:  zap.NewNop(),
		library: edu.NewLibrary(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.catalog == nil {
		c, err := whitelist.Load(cfg.WhitelistPath)
		if err != nil {
			return nil, fmt.Errorf("load whitelist: %w", err)
		}
		v.catalog = c
	}
	if v.detector == nil {
		tables, err := detect.LoadTables(cfg.PatternsPath)
		if err != nil {
			return nil, fmt.Errorf("load patterns: %w", err)
		}
		d, err := detect.New(tables, v.catalog, v.library)
		if err != nil {
			return nil, fmt.Errorf("build detector: %w", err)
		}
		v.detector = d
	}
	if v.store == nil {
		s, err := cache.Open(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		v.store = s
	}

	v.scorer = cfg.Scorer()
	v.executor = sandbox.New(cfg.Sandbox, v.catalog, cfg.Seed)
	v.events = outcome.NewGenerator(cfg.Outcome)
	return v, nil
}

// Config returns the configuration the validator was built with.
func (v *Validator) Config() *config.Config { return v.cfg }

// Library returns the educational content library.
func (v *Validator) Library() *edu.Library { return v.library }

// Close releases the cache store, and the audit log when Open created it.
// A log passed in with WithAudit stays open for its owner.
func (v *Validator) Close() error {
	var err error
	if v.store != nil {
		err = v.store.Close()
	}
	if v.audit != nil && v.ownsAudit {
		err = errors.Join(err, v.audit.Close())
	}
	return err
}

type flight struct {
	data []byte
	hit  bool
}

// Validate runs the pipeline. It never fails: every error path yields a
// structured, rejected result.
func (v *Validator) Validate(ctx context.Context, plan model.PatchPlan, vctx model.ValidationContext) *model.SandboxExecutionResult {
	requestID := uuid.NewString()
	vctx = vctx.Normalized()
	plan.BaselineRisk = model.Clamp01(plan.BaselineRisk)
	key := cache.Key(plan.Diff, vctx.Scenario, vctx.PlayerIntent, vctx.RiskTolerance, v.cfg.Seed)
	log := v.logger.With(zap.String("request_id", requestID), zap.String("cache_key", key))

	leader := false
	val, _, shared := v.group.Do(key, func() (any, error) {
		leader = true
		if data, ok, err := v.store.Get(ctx, key); err != nil {
			log.Warn("cache lookup failed", zap.Error(err))
		} else if ok {
			return flight{data: data, hit: true}, nil
		}

		res := v.compute(plan, vctx, key, log)
		data, err := json.Marshal(res)
		if err != nil {
			log.Error("encode result", zap.Error(err))
			return flight{}, nil
		}
		if err := v.store.Put(ctx, key, data); err != nil {
			log.Warn("cache store failed", zap.Error(err))
		}
		return flight{data: data}, nil
	})
	f := val.(flight)
	// Callers that joined another request's computation did not compute.
	hit := f.hit || (shared && !leader)

	res := &model.SandboxExecutionResult{}
	if len(f.data) == 0 {
		res = internalError(key, "result could not be encoded")
	} else if err := json.Unmarshal(f.data, res); err != nil {
		log.Error("decode result", zap.Error(err))
		res = internalError(key, "cached result could not be decoded")
	}
	// Educational mode is not part of the key: stored results carry content
	// for every finding and the mode filter applies per request.
	res.Security.Educational = v.library.Generate(res.Security.Violations, vctx.EducationalMode)

	log.Info("patch validated",
		zap.String("scenario", vctx.Scenario),
		zap.Bool("valid", res.Success),
		zap.Float64("risk", res.Security.RiskScore),
		zap.Int("violations", len(res.Security.Violations)),
		zap.Bool("cache_hit", hit),
	)

	if v.audit != nil {
		if err := v.audit.Record(audit.NewEntry(requestID, vctx.Scenario, v.configHash, res, hit)); err != nil {
			log.Warn("audit record failed", zap.Error(err))
		}
	}
	if v.alerts != nil && !hit {
		v.alerts.DispatchResult(requestID, vctx.Scenario, v.configHash, res)
	}
	return res
}

func (v *Validator) compute(plan model.PatchPlan, vctx model.ValidationContext, key string, log *zap.Logger) (res *model.SandboxExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", zap.Any("panic", r))
			res = internalError(key, fmt.Sprintf("internal error: %v", r))
			res.RejectionMessage = report.RejectionMessage(res.Security, v.scorer.RejectAt, plan.Alternatives)
			res.Events = v.events.Events(plan, vctx, res)
		}
	}()

	res = &model.SandboxExecutionResult{
		Deterministic: true,
		CacheKey:      key,
		Warnings:      []string{},
		Errors:        []string{},
	}

	ops, err := decompose.Decompose(plan.Diff, plan.Description, decompose.Options{MaxOperations: v.cfg.MaxOperations})
	if err != nil {
		msg := err.Error()
		var perr *decompose.PolicyError
		if errors.As(err, &perr) {
			log.Debug("policy error", zap.String("code", string(perr.Code)), zap.String("target", perr.Target))
		} else {
			msg = "structural error: " + msg
		}
		res.Security = emptyValidation()
		res.Security.RiskScore = 1
		res.Security.Errors = []string{msg}
		res.Errors = []string{msg}
		res.RejectionMessage = report.RejectionMessage(res.Security, v.scorer.RejectAt, plan.Alternatives)
		res.Events = v.events.Events(plan, vctx, res)
		return res
	}

	// A fallback operation carries the description, not code: scan the raw
	// diff text instead.
	var (
		violations []model.SecurityViolation
		flagged    map[int]bool
		code       string
	)
	if isFallback(ops) {
		code = plan.Diff
		violations = v.detector.Detect(plan.Diff, vctx)
		flagged = map[int]bool{0: len(violations) > 0}
	} else {
		violations, flagged = v.detector.DetectOperations(ops, vctx)
		code = scoredCode(ops)
	}
	log.Debug("detected", zap.Int("operations", len(ops)), zap.Int("violations", len(violations)))

	local := declaredFunctions(ops)
	security := emptyValidation()
	var allowed []model.Operation
	var notes []string
	for i, op := range ops {
		blocked := flagged[i]
		if !blocked && op.Kind == model.OpAdd {
			if ok, reason := v.catalog.Evaluate(op.Content, vctx.Scenario, local); !ok {
				blocked = true
				notes = append(notes, fmt.Sprintf("%s blocked: %s", op.Label(), reason))
			}
		}
		if blocked {
			security.BlockedOperations = append(security.BlockedOperations, op.Label())
			continue
		}
		security.AllowedOperations = append(security.AllowedOperations, op.Label())
		allowed = append(allowed, op)
	}

	breakdown := v.scorer.Breakdown(plan.BaselineRisk, violations, code, vctx.Scenario)
	decision := v.scorer.Decide(breakdown.Total, violations)
	log.Debug("scored",
		zap.Float64("baseline", breakdown.Baseline),
		zap.Float64("severity", breakdown.Severity),
		zap.Float64("total", breakdown.Total),
		zap.Bool("accept", decision.Accept),
	)

	if len(violations) > 0 {
		security.Violations = violations
	}
	security.RiskScore = breakdown.Total
	security.IsValid = decision.Accept
	security.Educational = v.library.Generate(violations, true)

	if !decision.Accept {
		errs := []string{decision.Reason}
		if !security.HasCritical() && len(violations) > 0 {
			errs = append(errs, fmt.Sprintf("%d security violation(s) detected", len(violations)))
		}
		security.Errors = errs
		res.Security = security
		res.Errors = errs
		res.RejectionMessage = report.RejectionMessage(security, v.scorer.RejectAt, plan.Alternatives)
		res.Events = v.events.Events(plan, vctx, res)
		return res
	}

	ex := v.executor.Execute(allowed, vctx, breakdown.Total, plan.BaselineRisk)
	for _, viol := range violations {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s %s at %s: %s", viol.Severity, viol.Type, viol.Location, viol.Description))
	}
	res.Warnings = append(res.Warnings, notes...)
	if n := len(security.BlockedOperations); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d blocked operation(s) skipped", n))
	}
	if vctx.RiskTolerance > 0 && breakdown.Total > vctx.RiskTolerance {
		res.Warnings = append(res.Warnings, fmt.Sprintf("risk %.2f exceeds tolerance %.2f", breakdown.Total, vctx.RiskTolerance))
	}
	res.Warnings = append(res.Warnings, ex.Warnings...)

	res.Success = true
	res.Output = ex.Output
	res.ExecutionTime = ex.Duration
	res.MemoryUsage = ex.MemoryUsage
	res.Security = security
	res.Events = v.events.Events(plan, vctx, res)
	return res
}

func emptyValidation() model.ValidationResult {
	return model.ValidationResult{
		Violations:        []model.SecurityViolation{},
		Educational:       []model.EducationalContent{},
		AllowedOperations: []string{},
		BlockedOperations: []string{},
	}
}

func internalError(key, msg string) *model.SandboxExecutionResult {
	sec := emptyValidation()
	sec.RiskScore = 1
	sec.Errors = []string{msg}
	return &model.SandboxExecutionResult{
		Deterministic: true,
		CacheKey:      key,
		Warnings:      []string{},
		Errors:        []string{msg},
		Security:      sec,
	}
}

func isFallback(ops []model.Operation) bool {
	return len(ops) == 1 && ops[0].Kind == model.OpModify && ops[0].Target == decompose.FallbackTarget
}

// scoredCode is the text risk factors are counted over: everything the patch
// introduces.
func scoredCode(ops []model.Operation) string {
	var parts []string
	for _, op := range ops {
		if op.Kind == model.OpRemove {
			continue
		}
		parts = append(parts, op.Content)
	}
	return strings.Join(parts, "\n")
}

func declaredFunctions(ops []model.Operation) map[string]bool {
	local := make(map[string]bool)
	for _, op := range ops {
		if op.Kind == model.OpRemove {
			continue
		}
		for _, name := range whitelist.DeclaredFunctions(op.Content) {
			local[name] = true
		}
	}
	return local
}
