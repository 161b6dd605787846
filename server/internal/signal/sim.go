package signal

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/registry"
)

// simFeed generates plausible sensor and production data for every post in
// the registry. It is an explicitly constructed instance with its own seeded
// random source — nothing is shared process-wide.
type simFeed struct {
	id  string
	reg *registry.Registry
	rnd *rand.Rand
	now func() time.Time

	mu          sync.Mutex
	anomalyRate float64

	posts map[string]*simPostState
}

// simPostState accumulates per-post production counters across polls.
type simPostState struct {
	items   int
	defects int
	status  types.PostStatus
}

// NewSim builds a simulated Feed. seed 0 seeds from the clock. anomalyRate is
// the per-reading probability of an out-of-threshold value.
func NewSim(id string, reg *registry.Registry, seed int64, anomalyRate float64) Feed {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &simFeed{
		id:          id,
		reg:         reg,
		rnd:         rand.New(rand.NewSource(seed)),
		anomalyRate: anomalyRate,
		now:         time.Now,
		posts:       make(map[string]*simPostState),
	}
}

func (f *simFeed) ID() string { return f.id }

// SetAnomalyRate retunes the per-reading anomaly probability, e.g. on config
// hot-reload. Values outside [0,1] are clamped. Takes effect on the next poll.
func (f *simFeed) SetAnomalyRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	f.mu.Lock()
	f.anomalyRate = rate
	f.mu.Unlock()
}

func (f *simFeed) rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anomalyRate
}

// Poll produces one sample covering every registered post. It never fails.
func (f *simFeed) Poll(_ context.Context) (*FeedSample, error) {
	sample := &FeedSample{FeedID: f.id, At: f.now()}

	for _, ln := range f.reg.Lines() {
		for _, post := range f.reg.Posts(ln.ID) {
			st := f.stateFor(post.ID)
			f.stepStatus(st)

			for _, spec := range post.Sensors {
				sample.Readings = append(sample.Readings,
					newReading(post, spec, f.sensorValue(spec), sample.At))
			}
			sample.Production = append(sample.Production, f.produce(ln.ID, post.ID, st, sample.At))
		}
	}
	return sample, nil
}

func (f *simFeed) stateFor(postID string) *simPostState {
	if st, ok := f.posts[postID]; ok {
		return st
	}
	st := &simPostState{status: types.PostRunning}
	f.posts[postID] = st
	return st
}

// stepStatus walks the post's operational status. Stopped and degraded posts
// tend to recover; running posts occasionally degrade or stop.
func (f *simFeed) stepStatus(st *simPostState) {
	r := f.rnd.Float64()
	switch st.status {
	case types.PostRunning:
		switch {
		case r < 0.02:
			st.status = types.PostStopped
		case r < 0.07:
			st.status = types.PostDegraded
		}
	case types.PostDegraded:
		switch {
		case r < 0.40:
			st.status = types.PostRunning
		case r < 0.45:
			st.status = types.PostStopped
		}
	case types.PostStopped:
		if r < 0.30 {
			st.status = types.PostRunning
		}
	}
}

// sensorValue draws a value inside the spec's thresholds, or — with the
// configured anomaly probability — slightly above the maximum.
func (f *simFeed) sensorValue(spec registry.SensorSpec) float64 {
	span := spec.Max - spec.Min
	if span <= 0 {
		span = 1
	}
	if f.rnd.Float64() < f.rate() {
		return spec.Max + span*(0.05+0.20*f.rnd.Float64())
	}
	// Cluster around the middle 60% of the band.
	return spec.Min + span*(0.2+0.6*f.rnd.Float64())
}

func (f *simFeed) produce(lineID, postID string, st *simPostState, at time.Time) types.ProductionUpdate {
	var made int
	var efficiency, cycle float64
	switch st.status {
	case types.PostRunning:
		made = 5 + f.rnd.Intn(8)
		efficiency = 78 + 20*f.rnd.Float64()
		cycle = 28 + 8*f.rnd.Float64()
	case types.PostDegraded:
		made = 1 + f.rnd.Intn(4)
		efficiency = 40 + 30*f.rnd.Float64()
		cycle = 45 + 20*f.rnd.Float64()
	case types.PostStopped:
		made, efficiency, cycle = 0, 0, 0
	}

	st.items += made
	if made > 0 && f.rnd.Float64() < 0.15 {
		st.defects++
	}

	return types.ProductionUpdate{
		PostID:           postID,
		LineID:           lineID,
		At:               at,
		ItemsProduced:    st.items,
		DefectCount:      st.defects,
		EfficiencyPct:    efficiency,
		Status:           st.status,
		CycleTimeSeconds: cycle,
		OEE:              deriveOEE(st.status, efficiency, st.items, st.defects),
	}
}
