package alert

// Event names an alert trigger.
const (
	EventRejected = "rejected"
	EventCritical = "critical"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["rejected", "critical"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string   `json:"timestamp"`
	RequestID  string   `json:"request_id"`
	Scenario   string   `json:"scenario"`
	CacheKey   string   `json:"cache_key"`
	Event      string   `json:"event"`
	Reason     string   `json:"reason"`
	RiskScore  float64  `json:"risk_score"`
	Tier       string   `json:"tier"`
	Violations []string `json:"violations,omitempty"`
	ConfigHash string   `json:"config_hash,omitempty"`
}
