package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// ReplayFilter holds filtering criteria for decision replay. Empty fields
// match everything.
type ReplayFilter struct {
	RequestID string
	Scenario  string
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// ReplaySummary holds decision counts for the replayed entries.
type ReplaySummary struct {
	Total          int     `json:"total"`
	Accepted       int     `json:"accepted"`
	Rejected       int     `json:"rejected"`
	Critical       int     `json:"critical"`
	CacheHits      int     `json:"cache_hits"`
	FirstTimestamp string  `json:"first_timestamp"`
	LastTimestamp  string  `json:"last_timestamp"`
	MaxRisk        float64 `json:"max_risk"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Filter  string        `json:"filter"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{Filter: describe(filter)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		if !filter.matches(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

func (f ReplayFilter) matches(entry AuditEntry) bool {
	if f.RequestID != "" && entry.RequestID != f.RequestID {
		return false
	}
	if f.Scenario != "" && !strings.EqualFold(entry.Scenario, f.Scenario) {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, entry.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func describe(f ReplayFilter) string {
	var parts []string
	if f.RequestID != "" {
		parts = append(parts, "request "+f.RequestID)
	}
	if f.Scenario != "" {
		parts = append(parts, "scenario "+f.Scenario)
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ", ")
}

func updateSummary(s *ReplaySummary, entry AuditEntry) {
	s.Total++
	if entry.Valid {
		s.Accepted++
	} else {
		s.Rejected++
	}
	if entry.Tier == "critical" {
		s.Critical++
	}
	if entry.CacheHit {
		s.CacheHits++
	}
	if entry.RiskScore > s.MaxRisk {
		s.MaxRisk = entry.RiskScore
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
