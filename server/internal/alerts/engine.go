package alerts

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/config"
)

// maxResolvedLen bounds the retained resolved-alert history.
const maxResolvedLen = 200

// PostInput is the per-post evaluation input for one tick.
type PostInput struct {
	PostID      string
	HealthScore float64
	Schedules   []types.Schedule
	Readings    []types.SensorReading
}

// Engine evaluates alert rules and owns the alert lifecycle.
//
// Engine is safe for concurrent use.
type Engine struct {
	client *http.Client
	now    func() time.Time // injectable for deterministic tests

	mu       sync.Mutex
	webhooks []config.WebhookConfig
	open     map[string]*types.Alert // by alert ID; status new or acknowledged
	resolved []*types.Alert
}

// NewEngine creates an Engine. An Engine with no webhooks is valid — alerts
// are still tracked, just not delivered anywhere.
func NewEngine(cfg config.AlertsConfig) *Engine {
	return &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		open:     make(map[string]*types.Alert),
	}
}

// GenerateForLine evaluates all rules for every post of a line and returns
// the line's open alerts after evaluation, newly fired ones included.
//
// Generation is idempotent: a rule that keeps firing leaves its existing open
// alert untouched, and a rule whose condition cleared resolves it.
func (e *Engine) GenerateForLine(lineID string, posts []PostInput) []types.Alert {
	now := e.now()

	type firing struct {
		id    string
		alert types.Alert
	}
	var fired []firing
	active := make(map[string]bool)

	for _, p := range posts {
		for _, res := range evaluatePost(p, now) {
			id := alertID(p.PostID, res.ruleType)
			active[id] = true
			fired = append(fired, firing{id: id, alert: types.Alert{
				ID:             id,
				LineID:         lineID,
				PostID:         p.PostID,
				Title:          res.title,
				Description:    res.description,
				Severity:       res.severity,
				CreatedAt:      now,
				DueDate:        res.dueDate,
				Status:         types.AlertNew,
				RequiredAction: res.requiredAction,
			}})
		}
	}

	var toDeliver []types.Alert

	e.mu.Lock()
	for _, f := range fired {
		if _, exists := e.open[f.id]; exists {
			continue // already open — leave status and timestamps alone
		}
		a := f.alert
		e.open[f.id] = &a
		toDeliver = append(toDeliver, a)
	}

	// Resolve open alerts for this line whose condition no longer holds.
	for id, a := range e.open {
		if a.LineID != lineID || active[id] {
			continue
		}
		a.Status = types.AlertResolved
		delete(e.open, id)
		e.resolved = append(e.resolved, a)
		if len(e.resolved) > maxResolvedLen {
			e.resolved = e.resolved[len(e.resolved)-maxResolvedLen:]
		}
		toDeliver = append(toDeliver, *a)
	}

	out := e.openForLineLocked(lineID)
	e.mu.Unlock()

	for _, a := range toDeliver {
		switch a.Status {
		case types.AlertResolved:
			slog.Info("alerts: resolved", "id", a.ID, "post", a.PostID, "title", a.Title)
		default:
			slog.Warn("alerts: fired",
				"id", a.ID, "post", a.PostID, "severity", a.Severity, "title", a.Title)
		}
		go e.deliver(a)
	}

	return out
}

// SetWebhooks replaces the delivery targets, e.g. on config hot-reload.
// Deliveries already in flight keep the targets they started with.
func (e *Engine) SetWebhooks(hooks []config.WebhookConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.webhooks = append([]config.WebhookConfig(nil), hooks...)
}

// Acknowledge transitions an alert from new to acknowledged. Acknowledging an
// already-acknowledged or resolved alert is a no-op, not an error.
func (e *Engine) Acknowledge(alertID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a, ok := e.open[alertID]; ok && a.Status == types.AlertNew {
		a.Status = types.AlertAcknowledged
	}
}

// OpenForLine returns copies of the line's open alerts.
func (e *Engine) OpenForLine(lineID string) []types.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.openForLineLocked(lineID)
}

func (e *Engine) openForLineLocked(lineID string) []types.Alert {
	out := make([]types.Alert, 0, len(e.open))
	for _, a := range e.open {
		if a.LineID == lineID {
			out = append(out, *a)
		}
	}
	return out
}

// Counts tallies alerts by severity for dashboard badges.
func Counts(alerts []types.Alert) types.AlertCounts {
	var c types.AlertCounts
	for _, a := range alerts {
		switch a.Severity {
		case types.SeverityCritical:
			c.Critical++
		case types.SeverityWarning:
			c.Warning++
		default:
			c.Info++
		}
	}
	return c
}

// alertID derives the deterministic alert identifier for a (post, rule) pair.
func alertID(postID, ruleType string) string {
	h := fnv.New64a()
	h.Write([]byte(postID))
	h.Write([]byte{':'})
	h.Write([]byte(ruleType))
	return fmt.Sprintf("%016x", h.Sum64())
}
