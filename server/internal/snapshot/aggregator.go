package snapshot

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/alerts"
	"github.com/linepulse/linepulse/server/internal/health"
	"github.com/linepulse/linepulse/server/internal/registry"
	"github.com/linepulse/linepulse/server/internal/signal"
)

// Aggregator builds LineSnapshots. Safe for concurrent use across lines; the
// per-line single-writer guarantee is enforced by the hub's line workers.
type Aggregator struct {
	reg    *registry.Registry
	src    *signal.Source
	health *health.Engine
	alerts *alerts.Engine

	now func() time.Time

	mu           sync.Mutex
	incidentRate float64
	rnd          *rand.Rand
	open         map[string]map[string]types.Incident // lineID → (postID+kind) → open incident
}

// New creates an Aggregator. incidentRate is the per-tick, per-post
// probability of a random minor incident; seed 0 seeds from the clock.
func New(reg *registry.Registry, src *signal.Source, he *health.Engine, ae *alerts.Engine, incidentRate float64, seed int64) *Aggregator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Aggregator{
		reg:          reg,
		src:          src,
		health:       he,
		alerts:       ae,
		incidentRate: incidentRate,
		now:          time.Now,
		rnd:          rand.New(rand.NewSource(seed)),
		open:         make(map[string]map[string]types.Incident),
	}
}

// SetIncidentRate retunes the random minor incident probability, e.g. on
// config hot-reload. Values outside [0,1] are clamped.
func (a *Aggregator) SetIncidentRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	a.mu.Lock()
	a.incidentRate = rate
	a.mu.Unlock()
}

// Generate composes the current snapshot for one line. Posts with no signal
// data yet are skipped for this tick rather than failing the line.
func (a *Aggregator) Generate(lineID string) (*types.LineSnapshot, error) {
	line, ok := a.reg.Line(lineID)
	if !ok {
		return nil, fmt.Errorf("snapshot: unknown line %q", lineID)
	}

	snap := &types.LineSnapshot{LineID: lineID, At: a.now()}
	var inputs []alerts.PostInput

	for _, post := range a.reg.Posts(line.ID) {
		readings := a.src.LatestReadings(post.ID)
		sort.Slice(readings, func(i, j int) bool { return readings[i].Type < readings[j].Type })
		snap.SensorReadings = append(snap.SensorReadings, readings...)

		entry := a.health.Compute(post.ID, a.reg.Schedules(post.ID))
		snap.HealthScores = append(snap.HealthScores, entry)

		if prod, ok := a.src.LatestProduction(post.ID); ok {
			snap.Production = append(snap.Production, prod)
		}

		inputs = append(inputs, alerts.PostInput{
			PostID:      post.ID,
			HealthScore: entry.Score,
			Schedules:   a.reg.Schedules(post.ID),
			Readings:    readings,
		})
	}

	snap.Alerts = a.alerts.GenerateForLine(lineID, inputs)
	sort.Slice(snap.Alerts, func(i, j int) bool { return snap.Alerts[i].ID < snap.Alerts[j].ID })

	snap.Incidents = a.generateIncidents(snap)
	snap.Metrics = foldMetrics(snap)

	return snap, nil
}

// foldMetrics computes the line-level aggregates. Every division is guarded.
func foldMetrics(snap *types.LineSnapshot) types.LineMetrics {
	m := types.LineMetrics{LineStatus: types.PostRunning, QualityRatePct: 100}

	if n := len(snap.HealthScores); n > 0 {
		var total float64
		for _, h := range snap.HealthScores {
			total += h.Score
		}
		m.AverageHealthScore = total / float64(n)
	}

	var produced, defects int
	if n := len(snap.Production); n > 0 {
		var totalEff float64
		for _, p := range snap.Production {
			totalEff += p.EfficiencyPct
			produced += p.ItemsProduced
			defects += p.DefectCount
			m.LineStatus = worseStatus(m.LineStatus, p.Status)
		}
		m.AverageEfficiencyPct = totalEff / float64(n)
	}

	m.TotalItemsProduced = produced
	if produced > 0 {
		m.QualityRatePct = (1 - float64(defects)/float64(produced)) * 100
		if m.QualityRatePct < 0 {
			m.QualityRatePct = 0
		}
	}
	return m
}

// worseStatus orders post statuses stopped > degraded > running.
func worseStatus(a, b types.PostStatus) types.PostStatus {
	rank := func(s types.PostStatus) int {
		switch s {
		case types.PostStopped:
			return 2
		case types.PostDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
