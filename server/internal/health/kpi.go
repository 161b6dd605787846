package health

import (
	"time"

	"github.com/linepulse/linepulse/pkg/types"
)

// LineKPIs folds the maintenance KPIs for one line. postIDs are the line's
// posts; schedulesFor resolves the maintenance records per post. The fold is
// pure — every division is guarded and an empty line yields a neutral result.
func LineKPIs(postIDs []string, schedulesFor func(postID string) []types.Schedule, now time.Time) types.LineKPIs {
	var (
		totalUsage  float64
		repairHours float64
		completed   int
		open        int
		overdue     int
		healthTotal float64
	)

	for _, postID := range postIDs {
		schedules := schedulesFor(postID)
		healthTotal += Score(schedules)

		for _, s := range schedules {
			totalUsage += s.CurrentUsageHours

			if s.Status == types.ScheduleCompleted {
				completed++
				if s.CompletedDate != nil && s.CompletedDate.After(s.ScheduledDate) {
					repairHours += s.CompletedDate.Sub(s.ScheduledDate).Hours()
				}
				continue
			}

			open++
			if s.ScheduledDate.Before(now) {
				overdue++
			}
		}
	}

	kpis := types.LineKPIs{}

	if len(postIDs) > 0 {
		kpis.AverageHealth = healthTotal / float64(len(postIDs))
	}
	if completed > 0 {
		kpis.MTBFHours = totalUsage / float64(completed)
		kpis.MTTRHours = repairHours / float64(completed)
	} else {
		// No failures observed yet — all accumulated usage is failure-free.
		kpis.MTBFHours = totalUsage
	}
	if total := kpis.MTBFHours + kpis.MTTRHours; total > 0 {
		kpis.AvailabilityPct = kpis.MTBFHours / total * 100
	} else {
		kpis.AvailabilityPct = 100
	}
	if open > 0 {
		kpis.OverdueRatePct = float64(overdue) / float64(open) * 100
	}
	return kpis
}
