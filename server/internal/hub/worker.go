package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/diff"
)

// runWorker is the generation loop for one Active line. Exactly one worker
// runs per line; it owns the "previous snapshot" cache, so the
// produce → diff → replace → broadcast cycle is single-writer by
// construction. It exits when the line goes Idle or the hub shuts down.
func (h *Hub) runWorker(ctx context.Context, ls *lineState) {
	var prev *types.LineSnapshot
	var seq uint64

	t := time.NewTicker(h.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ls.kick:
		case <-t.C:
		}
		if ctx.Err() != nil {
			return
		}
		h.safeTick(ls, &prev, &seq)
	}
}

// safeTick runs one generation cycle, containing panics: a crashing cycle is
// surfaced to the line's subscribers as an error event and the worker
// restarts from a clean previous-snapshot cache on the next tick.
func (h *Hub) safeTick(ls *lineState, prev **types.LineSnapshot, seq *uint64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("hub: line worker crashed, restarting", "line", ls.lineID, "panic", r)
			*prev = nil
			h.broadcastError(ls, "line worker restarted after internal error")
		}
	}()
	h.tickLine(ls, prev, seq)
}

// tickLine performs one produce → diff → replace → broadcast cycle.
func (h *Hub) tickLine(ls *lineState, prev **types.LineSnapshot, seq *uint64) {
	cur, err := h.generate(ls.lineID)
	if err != nil {
		slog.Error("hub: snapshot generation failed", "line", ls.lineID, "err", err)
		return
	}

	cs := diff.Compute(*prev, cur)
	*prev = cur
	*seq++

	h.events.record(cur, cs)
	h.broadcast(ls, cur, cs, *seq)
}

// broadcast fans one tick's output out to the line's subscribers. Sends are
// non-blocking: a subscriber with a saturated buffer has this event dropped
// and is marked for a full-snapshot resync, without delaying anyone else.
func (h *Hub) broadcast(ls *lineState, cur *types.LineSnapshot, cs types.ChangeSet, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range ls.subs {
		switch {
		case sub.bootstrap:
			env, err := types.NewEnvelope(types.EventInitialSnapshot, seq, filterSnapshot(cur, sub.filter))
			if err != nil {
				continue
			}
			if sub.c.push(env) {
				sub.bootstrap = false
			}
			// A failed bootstrap push retries on the next tick.

		case sub.resync:
			env, err := types.NewEnvelope(types.EventSnapshotUpdate, seq, filterSnapshot(cur, sub.filter))
			if err != nil {
				continue
			}
			if sub.c.push(env) {
				sub.resync = false
			}

		default:
			fcs := filterChanges(cs, sub.filter)
			if !fcs.HasAnyChanges {
				continue
			}
			env, err := types.NewEnvelope(types.EventDashboardUpdate, seq, types.DashboardUpdate{
				LineID:   ls.lineID,
				Changes:  fcs,
				Snapshot: *filterSnapshot(cur, sub.filter),
			})
			if err != nil {
				continue
			}
			if !sub.c.push(env) {
				slog.Warn("hub: subscriber buffer full, dropping update and scheduling resync",
					"line", ls.lineID, "conn", sub.c.id)
				sub.resync = true
				continue
			}
			h.pushSideEvents(sub, fcs, seq)
		}
	}
}

// pushSideEvents emits the dedicated new_alert / new_incident events that
// accompany a dashboard update. Best-effort: a full buffer flags a resync.
func (h *Hub) pushSideEvents(sub *subscription, cs types.ChangeSet, seq uint64) {
	for _, a := range cs.NewAlerts {
		env, err := types.NewEnvelope(types.EventNewAlert, seq, a)
		if err != nil {
			continue
		}
		if !sub.c.push(env) {
			sub.resync = true
			return
		}
	}
	for _, inc := range cs.NewIncidents {
		env, err := types.NewEnvelope(types.EventNewIncident, seq, inc)
		if err != nil {
			continue
		}
		if !sub.c.push(env) {
			sub.resync = true
			return
		}
	}
}

// broadcastError sends an error event to every subscriber of a line.
func (h *Hub) broadcastError(ls *lineState, msg string) {
	env, err := types.NewEnvelope(types.EventError, 0, types.ErrorPayload{
		Code:    types.ErrCodeInternal,
		Message: msg,
		LineID:  ls.lineID,
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range ls.subs {
		sub.c.push(env)
	}
}
