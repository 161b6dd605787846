package hub

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/linepulse/linepulse/pkg/types"
)

// eventLog keeps a bounded ring of floor events per line, derived from each
// tick's ChangeSet. It backs the request_event_stream operation.
type eventLog struct {
	size int

	mu     sync.Mutex
	byLine map[string][]types.FloorEvent
}

func newEventLog(size int) *eventLog {
	if size <= 0 {
		size = 1
	}
	return &eventLog{size: size, byLine: make(map[string][]types.FloorEvent)}
}

// record translates a tick's changes into floor events.
func (l *eventLog) record(cur *types.LineSnapshot, cs types.ChangeSet) {
	var events []types.FloorEvent

	for _, a := range cs.NewAlerts {
		events = append(events, types.FloorEvent{
			ID:      uuid.NewString(),
			LineID:  cur.LineID,
			PostID:  a.PostID,
			Kind:    "alert",
			Message: fmt.Sprintf("[%s] %s", a.Severity, a.Title),
			At:      cur.At,
		})
	}
	for _, inc := range cs.NewIncidents {
		events = append(events, types.FloorEvent{
			ID:      uuid.NewString(),
			LineID:  cur.LineID,
			PostID:  inc.PostID,
			Kind:    "incident",
			Message: fmt.Sprintf("%s (est. %d min downtime)", inc.Kind, inc.EstimatedDowntimeMinutes),
			At:      cur.At,
		})
	}
	for _, pc := range cs.ProductionChanges {
		events = append(events, types.FloorEvent{
			ID:      uuid.NewString(),
			LineID:  cur.LineID,
			PostID:  pc.PostID,
			Kind:    "production",
			Message: fmt.Sprintf("status %s, efficiency %.1f%%", pc.Status, pc.EfficiencyPct),
			At:      cur.At,
		})
	}
	if len(events) == 0 {
		return
	}

	l.mu.Lock()
	hist := append(l.byLine[cur.LineID], events...)
	if len(hist) > l.size {
		hist = hist[len(hist)-l.size:]
	}
	l.byLine[cur.LineID] = hist
	l.mu.Unlock()
}

// lastN returns the most recent n events for a line, oldest first.
// n <= 0 returns everything retained.
func (l *eventLog) lastN(lineID string, n int) []types.FloorEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	hist := l.byLine[lineID]
	if n > 0 && len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	out := make([]types.FloorEvent, len(hist))
	copy(out, hist)
	return out
}
