package health

import (
	"sync"
	"time"

	"github.com/linepulse/linepulse/pkg/types"
)

// Engine computes and records health scores per post. The history is
// append-only and bounded; entries are never mutated after insertion.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	maxEntries int
	now        func() time.Time // injectable for deterministic tests

	mu      sync.RWMutex
	entries map[string][]types.HealthScoreEntry
}

// NewEngine returns an Engine keeping at most maxEntries scores per post.
func NewEngine(maxEntries int) *Engine {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Engine{
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string][]types.HealthScoreEntry),
	}
}

// Compute derives the post's current score from its schedules, appends it to
// the history and returns the new entry.
func (e *Engine) Compute(postID string, schedules []types.Schedule) types.HealthScoreEntry {
	score := Score(schedules)
	entry := types.HealthScoreEntry{
		PostID:     postID,
		Score:      score,
		Status:     StatusFor(score),
		ComputedAt: e.now(),
	}

	e.mu.Lock()
	hist := append(e.entries[postID], entry)
	if len(hist) > e.maxEntries {
		hist = hist[len(hist)-e.maxEntries:]
	}
	e.entries[postID] = hist
	e.mu.Unlock()

	return entry
}

// Latest returns the most recent entry for a post.
func (e *Engine) Latest(postID string) (types.HealthScoreEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	hist := e.entries[postID]
	if len(hist) == 0 {
		return types.HealthScoreEntry{}, false
	}
	return hist[len(hist)-1], true
}

// History returns the retained entries for a post computed within the last
// given number of days, oldest first.
func (e *Engine) History(postID string, days int) []types.HealthScoreEntry {
	cutoff := e.now().AddDate(0, 0, -days)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []types.HealthScoreEntry
	for _, entry := range e.entries[postID] {
		if entry.ComputedAt.After(cutoff) {
			out = append(out, entry)
		}
	}
	return out
}
