package audit

import (
	"time"

	"github.com/ppiankov/patchguard/internal/model"
	"github.com/ppiankov/patchguard/internal/risk"
)

// AuditEntry is one line in the hash-chained JSONL audit log.
// All fields are concrete types (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
type AuditEntry struct {
	Timestamp  string   `json:"ts"`
	RequestID  string   `json:"request_id"`
	CacheKey   string   `json:"cache_key"`
	Scenario   string   `json:"scenario"`
	Valid      bool     `json:"valid"`
	RiskScore  float64  `json:"risk_score"`
	Tier       string   `json:"tier"`
	Violations []string `json:"violations"`
	Blocked    int      `json:"blocked"`
	CacheHit   bool     `json:"cache_hit,omitempty"`
	ConfigHash string   `json:"config_hash"`
	PrevHash   string   `json:"prev_hash"`
}

// NewEntry flattens a validation result into an audit entry.
func NewEntry(requestID, scenario, configHash string, res *model.SandboxExecutionResult, cacheHit bool) AuditEntry {
	violations := make([]string, 0, len(res.Security.Violations))
	for _, v := range res.Security.Violations {
		violations = append(violations, string(v.Type))
	}
	return AuditEntry{
		Timestamp:  time.Now().UTC().Format(TimestampFormat),
		RequestID:  requestID,
		CacheKey:   res.CacheKey,
		Scenario:   scenario,
		Valid:      res.Success,
		RiskScore:  res.Security.RiskScore,
		Tier:       risk.Tier(res.Security.RiskScore),
		Violations: violations,
		Blocked:    len(res.Security.BlockedOperations),
		CacheHit:   cacheHit,
		ConfigHash: configHash,
	}
}
