package health

import "github.com/linepulse/linepulse/pkg/types"

// Thresholds that map a score to a health band.
const (
	ThresholdGood      = 85.0
	ThresholdWarning   = 70.0
	ThresholdScheduled = 50.0
)

// Score computes the composite health score for a post from its maintenance
// schedules.
//
// For every schedule that is not completed, the usage ratio is
// currentUsageHours/triggerUsageHours and the cycle ratio is
// currentCycleCount/triggerCycleCount; a ratio is 0 when its trigger is unset
// or non-positive. The score is clamp(100 - maxRatio*100, 0, 100) over all
// ratios. With no triggers defined the score is 100 — missing data never
// penalizes and never errors.
func Score(schedules []types.Schedule) float64 {
	var maxRatio float64
	for _, s := range schedules {
		if s.Status == types.ScheduleCompleted {
			continue
		}
		if r := ratio(s.CurrentUsageHours, s.TriggerUsageHours); r > maxRatio {
			maxRatio = r
		}
		if r := ratio(s.CurrentCycleCount, s.TriggerCycleCount); r > maxRatio {
			maxRatio = r
		}
	}
	return clamp(100-maxRatio*100, 0, 100)
}

// StatusFor maps a score to its health band.
func StatusFor(score float64) types.HealthStatus {
	switch {
	case score >= ThresholdGood:
		return types.HealthGood
	case score >= ThresholdWarning:
		return types.HealthWarning
	case score >= ThresholdScheduled:
		return types.HealthScheduled
	default:
		return types.HealthCritical
	}
}

// Band is the dashboard presentation of a health status.
type Band struct {
	Icon        string `json:"icon"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// BandFor returns the icon, label and description for a score.
func BandFor(score float64) Band {
	switch StatusFor(score) {
	case types.HealthGood:
		return Band{Icon: "🟢", Label: "Good", Description: "Equipment operating normally"}
	case types.HealthWarning:
		return Band{Icon: "🟡", Label: "Warning", Description: "Schedule maintenance soon"}
	case types.HealthScheduled:
		return Band{Icon: "🟠", Label: "Scheduled", Description: "Maintenance due — plan an intervention"}
	default:
		return Band{Icon: "🔴", Label: "Critical", Description: "Immediate attention required"}
	}
}

// ratio returns current/trigger, or 0 when the trigger is unset or invalid.
func ratio(current, trigger float64) float64 {
	if trigger <= 0 {
		return 0
	}
	return current / trigger
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
