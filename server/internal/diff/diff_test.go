package diff

import (
	"testing"
	"time"

	"github.com/linepulse/linepulse/pkg/types"
)

func baseSnapshot() *types.LineSnapshot {
	at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	return &types.LineSnapshot{
		LineID: "line-1",
		At:     at,
		HealthScores: []types.HealthScoreEntry{
			{PostID: "post-1", Score: 90, Status: types.HealthGood},
			{PostID: "post-7", Score: 60, Status: types.HealthScheduled},
		},
		Alerts: []types.Alert{
			{ID: "a-1", PostID: "post-7", Status: types.AlertNew, Severity: types.SeverityWarning},
		},
		Production: []types.ProductionUpdate{
			{PostID: "post-1", Status: types.PostRunning, EfficiencyPct: 92.0, ItemsProduced: 40},
			{PostID: "post-7", Status: types.PostRunning, EfficiencyPct: 85.0, ItemsProduced: 31},
		},
		Incidents: []types.Incident{
			{ID: "inc-1", PostID: "post-7", Kind: "micro_stoppage"},
		},
	}
}

func TestComputeIdenticalSnapshotsYieldNothing(t *testing.T) {
	a := baseSnapshot()
	b := baseSnapshot()

	cs := Compute(a, b)

	if cs.HasAnyChanges {
		t.Fatalf("identical snapshots reported changes: %+v", cs)
	}
	if len(cs.HealthScoreChanges)+len(cs.NewAlerts)+len(cs.ProductionChanges)+len(cs.NewIncidents) != 0 {
		t.Fatalf("identical snapshots produced a non-empty change set: %+v", cs)
	}
}

func TestComputeBootstrap(t *testing.T) {
	cur := baseSnapshot()

	cs := Compute(nil, cur)

	if !cs.HasAnyChanges {
		t.Fatal("bootstrap change set must always report changes")
	}
	if len(cs.HealthScoreChanges) != len(cur.HealthScores) {
		t.Errorf("bootstrap health changes = %d, want %d", len(cs.HealthScoreChanges), len(cur.HealthScores))
	}
	if len(cs.NewAlerts) != len(cur.Alerts) {
		t.Errorf("bootstrap alerts = %d, want %d", len(cs.NewAlerts), len(cur.Alerts))
	}
	if len(cs.ProductionChanges) != len(cur.Production) {
		t.Errorf("bootstrap production changes = %d, want %d", len(cs.ProductionChanges), len(cur.Production))
	}
	if len(cs.NewIncidents) != len(cur.Incidents) {
		t.Errorf("bootstrap incidents = %d, want %d", len(cs.NewIncidents), len(cur.Incidents))
	}
	// Seeded scores show no artificial jump.
	for _, hc := range cs.HealthScoreChanges {
		if hc.Previous != hc.Current {
			t.Errorf("bootstrap %s: previous %v != current %v", hc.PostID, hc.Previous, hc.Current)
		}
	}
}

func TestComputeHealthNoiseFilter(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.HealthScores[0].Score = 90 + HealthDelta - 0.1 // below the filter
	cur.HealthScores[1].Score = 60 - HealthDelta       // at the filter

	cs := Compute(prev, cur)

	if len(cs.HealthScoreChanges) != 1 {
		t.Fatalf("health changes = %d, want 1: %+v", len(cs.HealthScoreChanges), cs.HealthScoreChanges)
	}
	hc := cs.HealthScoreChanges[0]
	if hc.PostID != "post-7" {
		t.Errorf("changed post = %s, want post-7", hc.PostID)
	}
	if hc.Previous != 60 || hc.Current != 55 {
		t.Errorf("change = %v -> %v, want 60 -> 55", hc.Previous, hc.Current)
	}
	if !cs.HasAnyChanges {
		t.Error("HasAnyChanges = false with a health change present")
	}
}

func TestComputeSingleNewAlert(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Alerts = append(cur.Alerts, types.Alert{
		ID: "a-2", PostID: "post-7", Status: types.AlertNew, Severity: types.SeverityCritical,
	})

	cs := Compute(prev, cur)

	if len(cs.NewAlerts) != 1 {
		t.Fatalf("new alerts = %d, want 1", len(cs.NewAlerts))
	}
	if cs.NewAlerts[0].ID != "a-2" {
		t.Errorf("new alert ID = %s, want a-2", cs.NewAlerts[0].ID)
	}
	if len(cs.HealthScoreChanges) != 0 || len(cs.ProductionChanges) != 0 || len(cs.NewIncidents) != 0 {
		t.Errorf("unrelated sections changed: %+v", cs)
	}
}

func TestComputeAcknowledgedAlertIsNotNew(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Alerts[0].Status = types.AlertAcknowledged

	cs := Compute(prev, cur)
	if len(cs.NewAlerts) != 0 {
		t.Errorf("acknowledging an alert produced %d new alerts", len(cs.NewAlerts))
	}
}

func TestComputeProductionChanges(t *testing.T) {
	prev := baseSnapshot()

	t.Run("status flip", func(t *testing.T) {
		cur := baseSnapshot()
		cur.Production[0].Status = types.PostDegraded
		cs := Compute(prev, cur)
		if len(cs.ProductionChanges) != 1 || cs.ProductionChanges[0].PostID != "post-1" {
			t.Fatalf("production changes = %+v, want one for post-1", cs.ProductionChanges)
		}
	})

	t.Run("efficiency jitter suppressed", func(t *testing.T) {
		cur := baseSnapshot()
		cur.Production[0].EfficiencyPct += EfficiencyEpsilon / 2
		cs := Compute(prev, cur)
		if len(cs.ProductionChanges) != 0 {
			t.Fatalf("sub-epsilon efficiency move reported: %+v", cs.ProductionChanges)
		}
	})

	t.Run("efficiency move reported", func(t *testing.T) {
		cur := baseSnapshot()
		cur.Production[1].EfficiencyPct -= 3
		cs := Compute(prev, cur)
		if len(cs.ProductionChanges) != 1 || cs.ProductionChanges[0].PostID != "post-7" {
			t.Fatalf("production changes = %+v, want one for post-7", cs.ProductionChanges)
		}
	})
}

func TestComputeNewIncidentOnly(t *testing.T) {
	prev := baseSnapshot()
	cur := baseSnapshot()
	cur.Incidents = append(cur.Incidents, types.Incident{
		ID: "inc-2", PostID: "post-1", Kind: "overheat_stoppage", Severity: types.SeverityCritical,
	})

	cs := Compute(prev, cur)
	if len(cs.NewIncidents) != 1 || cs.NewIncidents[0].ID != "inc-2" {
		t.Fatalf("new incidents = %+v, want just inc-2", cs.NewIncidents)
	}
}
