package alerts

import (
	"fmt"
	"time"

	"github.com/linepulse/linepulse/pkg/types"
)

// Rule type identifiers — part of the deterministic alert ID, so renaming one
// changes every derived ID.
const (
	ruleScheduleOverdue = "schedule_overdue"
	ruleLowHealth       = "low_health"
	ruleSensorAnomaly   = "sensor_anomaly" // suffixed with ":<sensor type>"
)

// Overdue severity boundaries in days.
const (
	overdueCriticalDays = 7
	overdueWarningDays  = 2
)

// Health score rule boundaries.
const (
	healthCriticalBelow = 50.0
	healthWarningBelow  = 75.0
)

// ruleResult is one fired rule for one post.
type ruleResult struct {
	ruleType       string
	severity       types.Severity
	title          string
	description    string
	requiredAction string
	dueDate        time.Time
}

// evaluatePost runs every rule against one post's inputs. Rules are
// independent; results are unioned.
func evaluatePost(p PostInput, now time.Time) []ruleResult {
	var out []ruleResult
	if res, ok := evalScheduleOverdue(p, now); ok {
		out = append(out, res)
	}
	if res, ok := evalLowHealth(p, now); ok {
		out = append(out, res)
	}
	out = append(out, evalSensorAnomalies(p, now)...)
	return out
}

// evalScheduleOverdue fires when any non-completed schedule is past its
// scheduled date. Severity scales with the most-overdue schedule.
func evalScheduleOverdue(p PostInput, now time.Time) (ruleResult, bool) {
	var worst *types.Schedule
	var worstDays int
	for i := range p.Schedules {
		s := &p.Schedules[i]
		if s.Status == types.ScheduleCompleted || !s.ScheduledDate.Before(now) {
			continue
		}
		days := int(now.Sub(s.ScheduledDate).Hours() / 24)
		if worst == nil || days > worstDays {
			worst, worstDays = s, days
		}
	}
	if worst == nil {
		return ruleResult{}, false
	}

	severity := types.SeverityInfo
	switch {
	case worstDays > overdueCriticalDays:
		severity = types.SeverityCritical
	case worstDays > overdueWarningDays:
		severity = types.SeverityWarning
	}

	return ruleResult{
		ruleType: ruleScheduleOverdue,
		severity: severity,
		title:    "Maintenance overdue",
		description: fmt.Sprintf("Schedule %s is %d day(s) past its planned date",
			worst.ID, worstDays),
		requiredAction: "Complete the overdue maintenance task",
		dueDate:        worst.ScheduledDate,
	}, true
}

// evalLowHealth fires below the warning boundary; the critical boundary
// escalates the severity and shortens the due date.
func evalLowHealth(p PostInput, now time.Time) (ruleResult, bool) {
	switch {
	case p.HealthScore < healthCriticalBelow:
		return ruleResult{
			ruleType: ruleLowHealth,
			severity: types.SeverityCritical,
			title:    "Critical health score",
			description: fmt.Sprintf("Health score %.0f is below %.0f",
				p.HealthScore, healthCriticalBelow),
			requiredAction: "Immediate attention required",
			dueDate:        now.Add(24 * time.Hour),
		}, true
	case p.HealthScore <= healthWarningBelow:
		return ruleResult{
			ruleType: ruleLowHealth,
			severity: types.SeverityWarning,
			title:    "Low health score",
			description: fmt.Sprintf("Health score %.0f is below %.0f",
				p.HealthScore, healthWarningBelow),
			requiredAction: "Schedule maintenance soon",
			dueDate:        now.Add(7 * 24 * time.Hour),
		}, true
	}
	return ruleResult{}, false
}

// evalSensorAnomalies fires one alert per sensor type whose latest reading is
// outside its thresholds, at the severity configured on the reading.
func evalSensorAnomalies(p PostInput, now time.Time) []ruleResult {
	var out []ruleResult
	for _, r := range p.Readings {
		if r.IsNormal {
			continue
		}
		severity := r.AlertLevel
		if severity == "" {
			severity = types.SeverityWarning
		}
		due := now.Add(72 * time.Hour)
		if severity == types.SeverityCritical {
			due = now.Add(24 * time.Hour)
		}
		out = append(out, ruleResult{
			ruleType: ruleSensorAnomaly + ":" + string(r.Type),
			severity: severity,
			title:    fmt.Sprintf("Sensor %s out of range", r.Type),
			description: fmt.Sprintf("%s reading %.1f%s outside [%.1f, %.1f]",
				r.Type, r.Value, r.Unit, r.ThresholdMin, r.ThresholdMax),
			requiredAction: "Inspect the sensor and the monitored equipment",
			dueDate:        due,
		})
	}
	return out
}
