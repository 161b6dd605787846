package snapshot

import (
	"github.com/google/uuid"

	"github.com/linepulse/linepulse/pkg/types"
)

// Incident kinds.
const (
	kindOverheatStoppage = "overheat_stoppage"
	kindMicroStoppage    = "micro_stoppage"
)

// generateIncidents emits the line's incidents for this tick.
//
// Rule incidents (elevated temperature while the post is stopped) stay open —
// keeping their ID — for as long as the condition holds, so consecutive
// snapshots do not report the same stoppage as new every tick. Random minor
// incidents are one-shot: they appear in exactly one snapshot.
func (a *Aggregator) generateIncidents(snap *types.LineSnapshot) []types.Incident {
	stopped := make(map[string]bool)
	for _, p := range snap.Production {
		if p.Status == types.PostStopped {
			stopped[p.PostID] = true
		}
	}
	overheated := make(map[string]bool)
	for _, r := range snap.SensorReadings {
		if r.Type == types.SensorTemperature && r.Value > r.ThresholdMax {
			overheated[r.PostID] = true
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	open := a.open[snap.LineID]
	if open == nil {
		open = make(map[string]types.Incident)
		a.open[snap.LineID] = open
	}

	var out []types.Incident

	for postID := range stopped {
		key := postID + "/" + kindOverheatStoppage
		if !overheated[postID] {
			continue
		}
		inc, exists := open[key]
		if !exists {
			inc = types.Incident{
				ID:                       uuid.NewString(),
				PostID:                   postID,
				LineID:                   snap.LineID,
				Kind:                     kindOverheatStoppage,
				Severity:                 types.SeverityCritical,
				At:                       snap.At,
				EstimatedDowntimeMinutes: 30 + a.rnd.Intn(90),
				RequiresIntervention:     true,
				Status:                   "open",
			}
			open[key] = inc
		}
		out = append(out, inc)
	}

	// Clear rule incidents whose condition no longer holds.
	for key, inc := range open {
		if !stopped[inc.PostID] || !overheated[inc.PostID] {
			delete(open, key)
		}
	}

	if a.incidentRate > 0 {
		for _, p := range snap.Production {
			if p.Status == types.PostStopped || a.rnd.Float64() >= a.incidentRate {
				continue
			}
			out = append(out, types.Incident{
				ID:                       uuid.NewString(),
				PostID:                   p.PostID,
				LineID:                   snap.LineID,
				Kind:                     kindMicroStoppage,
				Severity:                 types.SeverityWarning,
				At:                       snap.At,
				EstimatedDowntimeMinutes: 5 + a.rnd.Intn(10),
				RequiresIntervention:     false,
				Status:                   "open",
			})
		}
	}

	return out
}
