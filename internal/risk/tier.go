package risk

import "fmt"

// Risk tier constants. Higher tier = closer to rejection.
const (
	TierSafe     = 0 // well below threshold
	TierElevated = 1 // worth a look
	TierGuarded  = 2 // accepted with warnings
	TierCritical = 3 // rejected
)

// TierLabel returns a human-readable label for the tier.
func TierLabel(tier int) string {
	switch tier {
	case TierSafe:
		return "safe"
	case TierElevated:
		return "elevated"
	case TierGuarded:
		return "guarded"
	case TierCritical:
		return "critical"
	default:
		return fmt.Sprintf("unknown(%d)", tier)
	}
}

// ClassifyTier maps a score to a tier: <0.3 safe, <0.5 elevated,
// <rejectAt guarded, otherwise critical.
func ClassifyTier(score, rejectAt float64) int {
	if rejectAt <= 0 {
		rejectAt = DefaultRejectThreshold
	}
	switch {
	case score >= rejectAt:
		return TierCritical
	case score >= 0.5:
		return TierGuarded
	case score >= 0.3:
		return TierElevated
	default:
		return TierSafe
	}
}

// Tier labels a score against the default threshold.
func Tier(score float64) string {
	return TierLabel(ClassifyTier(score, DefaultRejectThreshold))
}
