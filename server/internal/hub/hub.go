package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/registry"
	"github.com/linepulse/linepulse/server/internal/signal"
	"github.com/linepulse/linepulse/server/internal/snapshot"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscription is one (connection, line) registration.
type subscription struct {
	c *conn

	// filter restricts delivery to these post IDs. Empty means all posts.
	filter map[string]bool

	// bootstrap marks a subscriber awaiting its first full snapshot.
	bootstrap bool

	// resync marks a subscriber that missed events (full send buffer); its
	// next delivery is a full snapshot instead of a delta.
	resync bool
}

// lineState is the hub-side state of one Active line.
type lineState struct {
	lineID string
	cancel context.CancelFunc
	kick   chan struct{} // wakes the worker for an immediate tick
	subs   map[string]*subscription
}

// Hub manages WebSocket connections, subscriptions and per-line generation
// workers.
type Hub struct {
	reg  *registry.Registry
	agg  *snapshot.Aggregator
	src  *signal.Source
	tick time.Duration

	events *eventLog

	ctx context.Context // worker parent; set by Run

	mu    sync.Mutex
	conns map[string]*conn
	lines map[string]*lineState
	locks map[string]*sync.Mutex // per-line generation lock
}

// New creates a Hub. tick is the per-line snapshot generation interval;
// eventBuffer bounds the floor event log per line.
func New(reg *registry.Registry, agg *snapshot.Aggregator, src *signal.Source, tick time.Duration, eventBuffer int) *Hub {
	return &Hub{
		reg:    reg,
		agg:    agg,
		src:    src,
		tick:   tick,
		events: newEventLog(eventBuffer),
		ctx:    context.Background(),
		conns:  make(map[string]*conn),
		lines:  make(map[string]*lineState),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Run anchors the hub's worker lifetimes to ctx and blocks until it is
// cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	<-ctx.Done()
	h.closeAll()
}

// ServeHTTP upgrades the HTTP connection to WebSocket and serves the client
// until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		hub:  h,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.drop(c)

	slog.Info("hub: client connected", "conn", c.id)
	go c.writePump()
	c.readPump() // blocks until the connection closes
}

// ConnCount returns the number of currently connected clients.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ActiveLines returns the IDs of lines currently generating snapshots.
func (h *Hub) ActiveLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.lines))
	for id := range h.lines {
		out = append(out, id)
	}
	return out
}

// dispatch routes one client request.
func (h *Hub) dispatch(c *conn, req types.Request) {
	switch req.Action {
	case types.ActionSubscribe:
		h.subscribe(c, req.LineID, req.PostIDs)
	case types.ActionUnsubscribe:
		h.unsubscribe(c, req.LineID)
	case types.ActionRequestSnapshot:
		h.requestSnapshot(c, req.LineID, req.PostIDs)
	case types.ActionRequestEvents:
		h.requestEvents(c, req.LineID, req.Count)
	case types.ActionRequestReport:
		h.requestReport(c, req.LineID, req.PostIDs)
	case types.ActionPing:
		h.pong(c)
	case types.ActionSubscriptionStatus:
		h.subscriptionStatus(c)
	default:
		c.pushError(types.ErrCodeValidation, "unknown action", "")
	}
}

// subscribe registers (c, lineID) and triggers an immediate bootstrap tick.
// A repeated subscribe for the same line replaces the post filter.
func (h *Hub) subscribe(c *conn, lineID string, postIDs []string) {
	if !h.validLine(c, lineID) {
		return
	}
	filter, ok := h.buildFilter(c, lineID, postIDs)
	if !ok {
		return
	}

	h.mu.Lock()
	ls, exists := h.lines[lineID]
	if !exists {
		// Idle → Active: first subscriber starts the line worker.
		ctx, cancel := context.WithCancel(h.ctx)
		ls = &lineState{
			lineID: lineID,
			cancel: cancel,
			kick:   make(chan struct{}, 1),
			subs:   make(map[string]*subscription),
		}
		h.lines[lineID] = ls
		go h.runWorker(ctx, ls)
		slog.Info("hub: line active", "line", lineID)
	}
	ls.subs[c.id] = &subscription{c: c, filter: filter, bootstrap: true}
	kick := ls.kick
	h.mu.Unlock()

	// Wake the worker so the bootstrap snapshot goes out now, not on the
	// next interval tick.
	select {
	case kick <- struct{}{}:
	default:
	}
}

// unsubscribe removes (c, lineID). The last subscriber idles the line.
func (h *Hub) unsubscribe(c *conn, lineID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSubLocked(c, lineID)
}

func (h *Hub) removeSubLocked(c *conn, lineID string) {
	ls, ok := h.lines[lineID]
	if !ok {
		return
	}
	if _, ok := ls.subs[c.id]; !ok {
		return
	}
	delete(ls.subs, c.id)
	if len(ls.subs) == 0 {
		// Active → Idle: no observers, stop generating.
		ls.cancel()
		delete(h.lines, lineID)
		slog.Info("hub: line idle", "line", lineID)
	}
}

// requestSnapshot sends a one-shot full snapshot to the requester only. It
// does not touch the cached previous snapshot used for broadcast diffs.
//
// Generation runs a full evaluation pass, so alert firing and resolution
// happen here exactly as they would on the next worker tick. Alert IDs are
// deterministic and generation is idempotent, so a one-shot request never
// duplicates an open alert — at most it advances the lifecycle by one tick.
func (h *Hub) requestSnapshot(c *conn, lineID string, postIDs []string) {
	if !h.validLine(c, lineID) {
		return
	}
	filter, ok := h.buildFilter(c, lineID, postIDs)
	if !ok {
		return
	}

	snap, err := h.generate(lineID)
	if err != nil {
		slog.Error("hub: one-shot snapshot failed", "line", lineID, "err", err)
		c.pushError(types.ErrCodeInternal, "snapshot generation failed", lineID)
		return
	}

	env, err := types.NewEnvelope(types.EventSnapshotUpdate, 0, filterSnapshot(snap, filter))
	if err != nil {
		c.pushError(types.ErrCodeInternal, "encode snapshot", lineID)
		return
	}
	c.push(env)
}

// requestEvents sends the last count floor events for a line.
func (h *Hub) requestEvents(c *conn, lineID string, count int) {
	if !h.validLine(c, lineID) {
		return
	}
	batch := types.EventStreamBatch{
		LineID: lineID,
		Events: h.events.lastN(lineID, count),
	}
	env, err := types.NewEnvelope(types.EventStream, 0, batch)
	if err != nil {
		return
	}
	c.push(env)
}

func (h *Hub) pong(c *conn) {
	env, err := types.NewEnvelope(types.EventPong, 0, struct {
		At time.Time `json:"at"`
	}{time.Now()})
	if err != nil {
		return
	}
	c.push(env)
}

// subscriptionStatus reports the connection's active subscriptions.
func (h *Hub) subscriptionStatus(c *conn) {
	status := types.SubscriptionStatus{ConnectionID: c.id}

	h.mu.Lock()
	for lineID, ls := range h.lines {
		sub, ok := ls.subs[c.id]
		if !ok {
			continue
		}
		info := types.SubscriptionInfo{LineID: lineID}
		for postID := range sub.filter {
			info.PostIDs = append(info.PostIDs, postID)
		}
		status.Subscriptions = append(status.Subscriptions, info)
	}
	h.mu.Unlock()

	env, err := types.NewEnvelope(types.EventSubscriptionStatus, 0, status)
	if err != nil {
		return
	}
	c.push(env)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

// drop removes a disconnected client and all of its subscriptions, idling
// lines that lose their last observer.
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	for lineID := range h.lines {
		h.removeSubLocked(c, lineID)
	}
	c.close()
	h.mu.Unlock()
	slog.Info("hub: client disconnected", "conn", c.id)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.close()
		delete(h.conns, id)
	}
	for id, ls := range h.lines {
		ls.cancel()
		delete(h.lines, id)
	}
}

// validLine rejects requests for unknown lines with a validation error.
func (h *Hub) validLine(c *conn, lineID string) bool {
	if lineID == "" {
		c.pushError(types.ErrCodeValidation, "line_id is required", "")
		return false
	}
	if _, ok := h.reg.Line(lineID); !ok {
		c.pushError(types.ErrCodeValidation, "unknown line", lineID)
		return false
	}
	return true
}

// buildFilter validates the requested post IDs against the line's registry
// and returns them as a set. Empty input means "all posts".
func (h *Hub) buildFilter(c *conn, lineID string, postIDs []string) (map[string]bool, bool) {
	filter := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		p, ok := h.reg.Post(id)
		if !ok || p.LineID != lineID {
			c.pushError(types.ErrCodeValidation, "unknown post "+id, lineID)
			return nil, false
		}
		filter[id] = true
	}
	return filter, true
}

// lineLock returns the per-line generation mutex, creating it on first use.
// Workers and one-shot requests both take it, so no two snapshots for the
// same line are ever generated concurrently.
func (h *Hub) lineLock(lineID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lk, ok := h.locks[lineID]
	if !ok {
		lk = &sync.Mutex{}
		h.locks[lineID] = lk
	}
	return lk
}

// generate produces one snapshot under the line's generation lock.
func (h *Hub) generate(lineID string) (*types.LineSnapshot, error) {
	lk := h.lineLock(lineID)
	lk.Lock()
	defer lk.Unlock()
	return h.agg.Generate(lineID)
}

// filterSnapshot narrows a snapshot to the posts in filter. An empty filter
// returns the snapshot unchanged. Line metrics always describe the whole line.
func filterSnapshot(snap *types.LineSnapshot, filter map[string]bool) *types.LineSnapshot {
	if len(filter) == 0 {
		return snap
	}
	out := &types.LineSnapshot{LineID: snap.LineID, At: snap.At, Metrics: snap.Metrics}
	for _, r := range snap.SensorReadings {
		if filter[r.PostID] {
			out.SensorReadings = append(out.SensorReadings, r)
		}
	}
	for _, p := range snap.Production {
		if filter[p.PostID] {
			out.Production = append(out.Production, p)
		}
	}
	for _, a := range snap.Alerts {
		if filter[a.PostID] {
			out.Alerts = append(out.Alerts, a)
		}
	}
	for _, hs := range snap.HealthScores {
		if filter[hs.PostID] {
			out.HealthScores = append(out.HealthScores, hs)
		}
	}
	for _, inc := range snap.Incidents {
		if filter[inc.PostID] {
			out.Incidents = append(out.Incidents, inc)
		}
	}
	return out
}

// filterChanges narrows a ChangeSet to the posts in filter and recomputes
// the has-changes flag.
func filterChanges(cs types.ChangeSet, filter map[string]bool) types.ChangeSet {
	if len(filter) == 0 {
		return cs
	}
	var out types.ChangeSet
	for _, hc := range cs.HealthScoreChanges {
		if filter[hc.PostID] {
			out.HealthScoreChanges = append(out.HealthScoreChanges, hc)
		}
	}
	for _, a := range cs.NewAlerts {
		if filter[a.PostID] {
			out.NewAlerts = append(out.NewAlerts, a)
		}
	}
	for _, pc := range cs.ProductionChanges {
		if filter[pc.PostID] {
			out.ProductionChanges = append(out.ProductionChanges, pc)
		}
	}
	for _, inc := range cs.NewIncidents {
		if filter[inc.PostID] {
			out.NewIncidents = append(out.NewIncidents, inc)
		}
	}
	out.HasAnyChanges = len(out.HealthScoreChanges) > 0 || len(out.NewAlerts) > 0 ||
		len(out.ProductionChanges) > 0 || len(out.NewIncidents) > 0
	return out
}
