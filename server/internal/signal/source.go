package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linepulse/linepulse/pkg/types"
)

// FeedSample is the normalized output of one poll cycle for a single feed.
type FeedSample struct {
	FeedID string
	At     time.Time

	Readings   []types.SensorReading
	Production []types.ProductionUpdate

	// Err is non-nil if the poll itself failed (connectivity, parse). The
	// source logs it and keeps the previous state for the affected posts.
	Err error
}

// Feed is the common interface implemented by every signal feed.
type Feed interface {
	ID() string
	Poll(ctx context.Context) (*FeedSample, error)
}

// AnomalyTuner is implemented by feeds whose anomaly injection rate can be
// retuned at runtime.
type AnomalyTuner interface {
	SetAnomalyRate(rate float64)
}

// Source aggregates feed samples into rolling per-post state. All exported
// methods are safe for concurrent use.
type Source struct {
	feeds        []Feed
	pollInterval time.Duration
	window       int // readings kept per (post, sensor type)
	prodWindow   int // production updates kept per post

	mu         sync.RWMutex
	readings   map[string]map[types.SensorType][]types.SensorReading
	production map[string][]types.ProductionUpdate
}

// NewSource creates a Source polling the given feeds. sensorWindow bounds
// the reading history per (post, sensor type); prodWindow bounds the
// production history per post and should cover the report window (hours of
// samples, not minutes).
func NewSource(feeds []Feed, pollInterval time.Duration, sensorWindow, prodWindow int) *Source {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if sensorWindow <= 0 {
		sensorWindow = 1
	}
	if prodWindow <= 0 {
		prodWindow = sensorWindow
	}
	return &Source{
		feeds:        feeds,
		pollInterval: pollInterval,
		window:       sensorWindow,
		prodWindow:   prodWindow,
		readings:     make(map[string]map[types.SensorType][]types.SensorReading),
		production:   make(map[string][]types.ProductionUpdate),
	}
}

// Run polls all feeds once immediately, then on every poll interval, until
// ctx is cancelled.
func (s *Source) Run(ctx context.Context) {
	s.pollAll(ctx)

	t := time.NewTicker(s.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.pollAll(ctx)
		}
	}
}

func (s *Source) pollAll(ctx context.Context) {
	for _, f := range s.feeds {
		sample, err := f.Poll(ctx)
		if err != nil {
			slog.Warn("signal: poll failed", "feed", f.ID(), "err", err)
			continue
		}
		if sample.Err != nil {
			slog.Warn("signal: feed reported error", "feed", f.ID(), "err", sample.Err)
			continue
		}
		s.Apply(sample)
	}
}

// Apply ingests one feed sample into the rolling state.
func (s *Source) Apply(sample *FeedSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range sample.Readings {
		byType, ok := s.readings[r.PostID]
		if !ok {
			byType = make(map[types.SensorType][]types.SensorReading)
			s.readings[r.PostID] = byType
		}
		hist := append(byType[r.Type], r)
		if len(hist) > s.window {
			hist = hist[len(hist)-s.window:]
		}
		byType[r.Type] = hist
	}

	for _, p := range sample.Production {
		hist := append(s.production[p.PostID], p)
		if len(hist) > s.prodWindow {
			hist = hist[len(hist)-s.prodWindow:]
		}
		s.production[p.PostID] = hist
	}
}

// LatestReadings returns the most recent reading per sensor type for a post.
func (s *Source) LatestReadings(postID string) []types.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := s.readings[postID]
	out := make([]types.SensorReading, 0, len(byType))
	for _, hist := range byType {
		if len(hist) > 0 {
			out = append(out, hist[len(hist)-1])
		}
	}
	return out
}

// ReadingHistory returns up to n most recent readings for one sensor of a
// post, oldest first.
func (s *Source) ReadingHistory(postID string, st types.SensorType, n int) []types.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.readings[postID][st]
	if n > 0 && len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	out := make([]types.SensorReading, len(hist))
	copy(out, hist)
	return out
}

// LatestProduction returns the current production state of a post.
func (s *Source) LatestProduction(postID string) (types.ProductionUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hist := s.production[postID]
	if len(hist) == 0 {
		return types.ProductionUpdate{}, false
	}
	return hist[len(hist)-1], true
}

// ProductionHistory returns the retained production updates for a post that
// are not older than since, oldest first.
func (s *Source) ProductionHistory(postID string, since time.Time) []types.ProductionUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.ProductionUpdate
	for _, p := range s.production[postID] {
		if !p.At.Before(since) {
			out = append(out, p)
		}
	}
	return out
}
