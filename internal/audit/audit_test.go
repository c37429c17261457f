package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/patchguard/internal/model"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(valid bool) AuditEntry {
	return AuditEntry{
		Timestamp:  time.Now().UTC().Format(TimestampFormat),
		RequestID:  "req-test123",
		CacheKey:   "sha256:abc",
		Scenario:   "default",
		Valid:      valid,
		RiskScore:  0.2,
		Tier:       "safe",
		ConfigHash: "sha256:cfg",
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 5; i++ {
		if err := l.Record(testEntry(true)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry(false)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	// Flip the decision on line 2.
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"valid":false`, `"valid":true`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		l.Record(testEntry(true))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted entry to be invalid")
	}
	if result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsInsertedEntry(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		l.Record(testEntry(true))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	fake := testEntry(true)
	fake.PrevHash = "sha256:fake"
	fakeJSON, _ := json.Marshal(fake)
	inserted := []string{lines[0], string(fakeJSON), lines[1], lines[2]}
	os.WriteFile(path, []byte(strings.Join(inserted, "\n")+"\n"), 0644)

	if result := Verify(path); result.Valid {
		t.Fatal("expected chain with inserted entry to be invalid")
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "missing.jsonl"))
	if result.Valid || result.Error == "" {
		t.Fatalf("expected error for missing file, got %+v", result)
	}
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	os.WriteFile(path, []byte{}, 0644)

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected empty log to be valid, got: %s", result.Error)
	}
	if result.Lines != 0 {
		t.Fatalf("expected 0 lines, got %d", result.Lines)
	}
}

func TestConcurrentWritesSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(testEntry(true))
		}()
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after concurrent writes, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 100 {
		t.Fatalf("expected 100 lines, got %d", result.Lines)
	}
}

func TestGenesisHashIsCorrect(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry(true))
	l.Close()

	data, _ := os.ReadFile(path)
	var entry AuditEntry
	json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry)

	if entry.PrevHash != GenesisHash {
		t.Fatalf("expected genesis hash %s, got %s", GenesisHash, entry.PrevHash)
	}
	if entry.Violations == nil {
		t.Error("violations should serialize as an empty list")
	}
}

func TestHashLineIsDeterministic(t *testing.T) {
	line := []byte(`{"ts":"2025-01-15T10:30:00.000Z","request_id":"r","valid":true,"prev_hash":"sha256:def"}`)
	h1 := HashLine(line)
	if h1 != HashLine(line) {
		t.Fatal("expected same hash for same input")
	}
	if !strings.HasPrefix(h1, "sha256:") || len(h1) != 7+64 {
		t.Fatalf("unexpected hash format %s", h1)
	}
	if HashLine([]byte("config_v1")) == HashLine([]byte("config_v2")) {
		t.Fatal("expected different hashes for different inputs")
	}
}

func TestOpenExistingLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reopen.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		l1.Record(testEntry(true))
	}
	l1.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if l2.Path() != path {
		t.Errorf("Path() = %s, want %s", l2.Path(), path)
	}
	for i := 0; i < 2; i++ {
		l2.Record(testEntry(false))
	}
	l2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after reopen, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestNewEntryFromResult(t *testing.T) {
	res := &model.SandboxExecutionResult{
		CacheKey: "sha256:key",
		Security: model.ValidationResult{
			RiskScore: 0.9,
			Violations: []model.SecurityViolation{
				{Type: model.ViolationUnsafeEval, Severity: model.SeverityCritical},
				{Type: model.ViolationXSS, Severity: model.SeverityHigh},
			},
			BlockedOperations: []string{"add:a.js:1", "add:a.js:2"},
		},
	}

	e := NewEntry("req-1", "xss", "sha256:cfg", res, true)
	if e.Valid || e.RequestID != "req-1" || e.CacheKey != "sha256:key" || !e.CacheHit {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Tier != "critical" || e.Blocked != 2 {
		t.Errorf("unexpected tier/blocked %s/%d", e.Tier, e.Blocked)
	}
	if len(e.Violations) != 2 || e.Violations[0] != string(model.ViolationUnsafeEval) {
		t.Errorf("unexpected violations %v", e.Violations)
	}
	if _, err := time.Parse(TimestampFormat, e.Timestamp); err != nil {
		t.Errorf("bad timestamp %q: %v", e.Timestamp, err)
	}
}

// writeTestLog creates a temp audit log with known entries for testing.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)
	entries := []AuditEntry{
		{Timestamp: base.Format(TimestampFormat), RequestID: "r-1", Scenario: "xss", Valid: true, RiskScore: 0.1, Tier: "safe"},
		{Timestamp: base.Add(2 * time.Second).Format(TimestampFormat), RequestID: "r-2", Scenario: "xss", Valid: false, RiskScore: 0.9, Tier: "critical", Violations: []string{"cross-site-scripting"}},
		{Timestamp: base.Add(4 * time.Second).Format(TimestampFormat), RequestID: "r-3", Scenario: "default", Valid: true, RiskScore: 0.4, Tier: "elevated"},
		{Timestamp: base.Add(6 * time.Second).Format(TimestampFormat), RequestID: "r-2", Scenario: "xss", Valid: false, RiskScore: 0.9, Tier: "critical", CacheHit: true},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestReplayFilters(t *testing.T) {
	path := writeTestLog(t)
	base := time.Date(2025, 1, 15, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter ReplayFilter
		want   int
	}{
		{"all", ReplayFilter{}, 4},
		{"request", ReplayFilter{RequestID: "r-2"}, 2},
		{"scenario case-insensitive", ReplayFilter{Scenario: "XSS"}, 3},
		{"from", ReplayFilter{From: base.Add(3 * time.Second)}, 2},
		{"to", ReplayFilter{To: base.Add(3 * time.Second)}, 2},
		{"no match", ReplayFilter{RequestID: "r-missing"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Replay(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(result.Entries) != tt.want {
				t.Errorf("got %d entries, want %d", len(result.Entries), tt.want)
			}
		})
	}
}

func TestReplaySummary(t *testing.T) {
	result, err := Replay(writeTestLog(t), ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	s := result.Summary
	if s.Total != 4 || s.Accepted != 2 || s.Rejected != 2 || s.Critical != 2 || s.CacheHits != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.MaxRisk != 0.9 {
		t.Errorf("MaxRisk = %v, want 0.9", s.MaxRisk)
	}
	if s.FirstTimestamp != "2025-01-15T14:00:00.000Z" || s.LastTimestamp != "2025-01-15T14:00:06.000Z" {
		t.Errorf("unexpected range %s..%s", s.FirstTimestamp, s.LastTimestamp)
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := writeTestLog(t)
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	f.WriteString("not json\n")
	f.Close()

	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.Total != 4 {
		t.Errorf("expected malformed line skipped, got %d entries", result.Summary.Total)
	}
}

func TestReplayMissingFile(t *testing.T) {
	if _, err := Replay(filepath.Join(t.TempDir(), "nope.jsonl"), ReplayFilter{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFormatTimeline(t *testing.T) {
	result, err := Replay(writeTestLog(t), ReplayFilter{Scenario: "xss"})
	if err != nil {
		t.Fatal(err)
	}
	out := FormatTimeline(result)

	for _, want := range []string{
		"Decisions: scenario xss",
		"14:00:00",
		"ACCEPT",
		"REJECT",
		"[cached]",
		"cross-site-scripting",
		"Summary: 1 accepted, 2 rejected, 2 critical, 1 cached | Max risk: 0.90 (critical)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("timeline missing %q:\n%s", want, out)
		}
	}
}

func TestFormatTimelineEmpty(t *testing.T) {
	out := FormatTimeline(&ReplayResult{Filter: "request r-x"})
	if !strings.Contains(out, "No entries found") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	result, err := Replay(writeTestLog(t), ReplayFilter{RequestID: "r-1"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := FormatJSON(result)
	if err != nil {
		t.Fatal(err)
	}
	var parsed ReplayResult
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Summary.Total != 1 || parsed.Entries[0].RequestID != "r-1" {
		t.Errorf("unexpected parsed result %+v", parsed)
	}
}
