package health

import (
	"testing"
	"time"

	"github.com/linepulse/linepulse/pkg/types"
)

func sched(usage, trigger float64, status types.ScheduleStatus) types.Schedule {
	return types.Schedule{
		ID:                "s1",
		PostID:            "post-1",
		Status:            status,
		TriggerUsageHours: trigger,
		CurrentUsageHours: usage,
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		schedules []types.Schedule
		want      float64
	}{
		{"no schedules", nil, 100},
		{"no triggers configured", []types.Schedule{sched(500, 0, types.SchedulePending)}, 100},
		{"well under trigger", []types.Schedule{sched(10, 100, types.SchedulePending)}, 90},
		{"near trigger", []types.Schedule{sched(90, 100, types.SchedulePending)}, 10},
		{"past trigger clamps to zero", []types.Schedule{sched(150, 100, types.SchedulePending)}, 0},
		{"completed schedules ignored", []types.Schedule{sched(150, 100, types.ScheduleCompleted)}, 100},
		{
			"worst ratio wins",
			[]types.Schedule{
				sched(10, 100, types.SchedulePending),
				sched(80, 100, types.ScheduleInProgress),
			},
			20,
		},
		{
			"cycle counter drives the score",
			[]types.Schedule{{
				Status:            types.SchedulePending,
				TriggerCycleCount: 1000,
				CurrentCycleCount: 600,
			}},
			40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.schedules); got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreNeverPenalizesMoreAsUsageDrops(t *testing.T) {
	// Score must be monotonically non-increasing in usage.
	prev := 101.0
	for usage := 0.0; usage <= 120; usage += 10 {
		got := Score([]types.Schedule{sched(usage, 100, types.SchedulePending)})
		if got > prev {
			t.Fatalf("score rose from %v to %v as usage grew to %v", prev, got, usage)
		}
		if got < 0 || got > 100 {
			t.Fatalf("score %v out of [0,100] at usage %v", got, usage)
		}
		prev = got
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		score float64
		want  types.HealthStatus
	}{
		{100, types.HealthGood},
		{85, types.HealthGood},
		{84.9, types.HealthWarning},
		{70, types.HealthWarning},
		{69.9, types.HealthScheduled},
		{50, types.HealthScheduled},
		{49.9, types.HealthCritical},
		{0, types.HealthCritical},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.score); got != tt.want {
			t.Errorf("StatusFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestBandFor(t *testing.T) {
	if b := BandFor(90); b.Label != "Good" {
		t.Errorf("BandFor(90).Label = %q, want Good", b.Label)
	}
	if b := BandFor(10); b.Label != "Critical" || b.Icon == "" {
		t.Errorf("BandFor(10) = %+v, want Critical band with icon", b)
	}
}

func TestEngineComputeAndHistory(t *testing.T) {
	e := NewEngine(3)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tick := 0
	e.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	entry := e.Compute("post-7", []types.Schedule{sched(90, 100, types.SchedulePending)})
	if entry.Score != 10 {
		t.Fatalf("Compute score = %v, want 10", entry.Score)
	}
	if entry.Status != types.HealthCritical {
		t.Fatalf("Compute status = %v, want critical", entry.Status)
	}

	for i := 0; i < 5; i++ {
		e.Compute("post-7", nil)
	}

	latest, ok := e.Latest("post-7")
	if !ok {
		t.Fatal("Latest returned no entry")
	}
	if latest.Score != 100 {
		t.Errorf("Latest score = %v, want 100", latest.Score)
	}

	hist := e.History("post-7", 30)
	if len(hist) != 3 {
		t.Fatalf("History kept %d entries, want 3 (bounded)", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].ComputedAt.Before(hist[i-1].ComputedAt) {
			t.Fatal("History not in chronological order")
		}
	}

	if _, ok := e.Latest("unknown"); ok {
		t.Error("Latest for unknown post reported an entry")
	}
}

func TestLineKPIs(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	completedAt := now.Add(-24 * time.Hour)
	scheduledAt := completedAt.Add(-4 * time.Hour)

	schedules := map[string][]types.Schedule{
		"p1": {
			{
				Status:            types.ScheduleCompleted,
				ScheduledDate:     scheduledAt,
				CompletedDate:     &completedAt,
				CurrentUsageHours: 200,
			},
			{
				Status:            types.SchedulePending,
				ScheduledDate:     now.Add(-48 * time.Hour), // overdue
				CurrentUsageHours: 100,
				TriggerUsageHours: 400,
			},
		},
		"p2": {
			{
				Status:        types.SchedulePending,
				ScheduledDate: now.Add(72 * time.Hour),
			},
		},
	}

	kpis := LineKPIs([]string{"p1", "p2"}, func(id string) []types.Schedule {
		return schedules[id]
	}, now)

	if kpis.MTBFHours != 300 {
		t.Errorf("MTBFHours = %v, want 300", kpis.MTBFHours)
	}
	if kpis.MTTRHours != 4 {
		t.Errorf("MTTRHours = %v, want 4", kpis.MTTRHours)
	}
	wantAvail := 300.0 / 304.0 * 100
	if diff := kpis.AvailabilityPct - wantAvail; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvailabilityPct = %v, want %v", kpis.AvailabilityPct, wantAvail)
	}
	if kpis.OverdueRatePct != 50 {
		t.Errorf("OverdueRatePct = %v, want 50", kpis.OverdueRatePct)
	}
	// p1 score 75 (ratio .25), p2 score 100.
	if kpis.AverageHealth != 87.5 {
		t.Errorf("AverageHealth = %v, want 87.5", kpis.AverageHealth)
	}
}

func TestLineKPIsEmptyLine(t *testing.T) {
	kpis := LineKPIs(nil, func(string) []types.Schedule { return nil }, time.Now())
	if kpis.AvailabilityPct != 100 {
		t.Errorf("AvailabilityPct = %v, want neutral 100", kpis.AvailabilityPct)
	}
	if kpis.MTBFHours != 0 || kpis.MTTRHours != 0 || kpis.OverdueRatePct != 0 {
		t.Errorf("empty line KPIs not neutral: %+v", kpis)
	}
}
