package diff

import (
	"math"

	"github.com/linepulse/linepulse/pkg/types"
)

const (
	// HealthDelta is the noise filter: score movements below this are not
	// reported.
	HealthDelta = 5.0

	// EfficiencyEpsilon suppresses sub-half-point efficiency jitter.
	EfficiencyEpsilon = 0.5
)

// Compute diffs cur against prev.
//
// When prev is nil (first tick for a line) the ChangeSet contains everything
// in cur as new — bootstrap semantics that seed a fresh dashboard in one
// push — rather than being empty.
func Compute(prev, cur *types.LineSnapshot) types.ChangeSet {
	if prev == nil {
		return bootstrap(cur)
	}

	var cs types.ChangeSet

	prevHealth := make(map[string]float64, len(prev.HealthScores))
	for _, h := range prev.HealthScores {
		prevHealth[h.PostID] = h.Score
	}
	for _, h := range cur.HealthScores {
		before, seen := prevHealth[h.PostID]
		if !seen || math.Abs(h.Score-before) >= HealthDelta {
			cs.HealthScoreChanges = append(cs.HealthScoreChanges, types.HealthScoreChange{
				PostID:   h.PostID,
				Previous: before,
				Current:  h.Score,
				Status:   h.Status,
			})
		}
	}

	prevAlerts := make(map[string]types.AlertStatus, len(prev.Alerts))
	for _, a := range prev.Alerts {
		prevAlerts[a.ID] = a.Status
	}
	for _, a := range cur.Alerts {
		before, seen := prevAlerts[a.ID]
		if !seen || (a.Status == types.AlertNew && before != types.AlertNew) {
			cs.NewAlerts = append(cs.NewAlerts, a)
		}
	}

	prevProd := make(map[string]types.ProductionUpdate, len(prev.Production))
	for _, p := range prev.Production {
		prevProd[p.PostID] = p
	}
	for _, p := range cur.Production {
		before, seen := prevProd[p.PostID]
		if !seen || p.Status != before.Status ||
			math.Abs(p.EfficiencyPct-before.EfficiencyPct) > EfficiencyEpsilon {
			cs.ProductionChanges = append(cs.ProductionChanges, types.ProductionChange{
				PostID:        p.PostID,
				Status:        p.Status,
				EfficiencyPct: p.EfficiencyPct,
				ItemsProduced: p.ItemsProduced,
			})
		}
	}

	prevInc := make(map[string]bool, len(prev.Incidents))
	for _, inc := range prev.Incidents {
		prevInc[inc.ID] = true
	}
	for _, inc := range cur.Incidents {
		if !prevInc[inc.ID] {
			cs.NewIncidents = append(cs.NewIncidents, inc)
		}
	}

	cs.HasAnyChanges = len(cs.HealthScoreChanges) > 0 || len(cs.NewAlerts) > 0 ||
		len(cs.ProductionChanges) > 0 || len(cs.NewIncidents) > 0
	return cs
}

// bootstrap reports every element of cur as new.
func bootstrap(cur *types.LineSnapshot) types.ChangeSet {
	var cs types.ChangeSet

	for _, h := range cur.HealthScores {
		cs.HealthScoreChanges = append(cs.HealthScoreChanges, types.HealthScoreChange{
			PostID:   h.PostID,
			Previous: h.Score, // no earlier observation; seed, not a jump
			Current:  h.Score,
			Status:   h.Status,
		})
	}
	cs.NewAlerts = append(cs.NewAlerts, cur.Alerts...)
	for _, p := range cur.Production {
		cs.ProductionChanges = append(cs.ProductionChanges, types.ProductionChange{
			PostID:        p.PostID,
			Status:        p.Status,
			EfficiencyPct: p.EfficiencyPct,
			ItemsProduced: p.ItemsProduced,
		})
	}
	cs.NewIncidents = append(cs.NewIncidents, cur.Incidents...)

	cs.HasAnyChanges = true
	return cs
}
