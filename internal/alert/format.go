package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	violations := "none"
	if len(event.Violations) > 0 {
		violations = strings.Join(event.Violations, ", ")
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("patchguard: patch %s", event.Event),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Scenario:* %s", event.Scenario)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %.2f (%s)", event.RiskScore, event.Tier)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Violations:* %s", violations)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "warning"
	if event.Event == EventCritical {
		severity = "critical"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("patchguard %s: %s", event.Event, event.Scenario),
			"severity": severity,
			"source":   "patchguard",
			"custom_details": map[string]any{
				"request_id": event.RequestID,
				"cache_key":  event.CacheKey,
				"risk_score": event.RiskScore,
				"violations": event.Violations,
				"reason":     event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}
