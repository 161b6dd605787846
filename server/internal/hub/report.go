package hub

import (
	"log/slog"
	"sort"
	"time"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/alerts"
	"github.com/linepulse/linepulse/server/internal/health"
)

// reportWindow is how far back the hourly production buckets reach.
const reportWindow = 8 * time.Hour

// requestReport composes and sends the complete line report to the requester.
func (h *Hub) requestReport(c *conn, lineID string, postIDs []string) {
	if !h.validLine(c, lineID) {
		return
	}
	filter, ok := h.buildFilter(c, lineID, postIDs)
	if !ok {
		return
	}

	snap, err := h.generate(lineID)
	if err != nil {
		slog.Error("hub: report snapshot failed", "line", lineID, "err", err)
		c.pushError(types.ErrCodeInternal, "report generation failed", lineID)
		return
	}
	filtered := filterSnapshot(snap, filter)

	ids := make([]string, 0)
	for _, p := range h.reg.Posts(lineID) {
		if len(filter) == 0 || filter[p.ID] {
			ids = append(ids, p.ID)
		}
	}

	now := time.Now()
	report := types.CompleteReport{
		Snapshot:      *filtered,
		Hourly:        h.hourlyMetrics(ids, now),
		KPIs:          health.LineKPIs(ids, h.reg.Schedules, now),
		AlertCounts:   alerts.Counts(filtered.Alerts),
		OpenIncidents: len(filtered.Incidents),
		GeneratedAt:   now,
	}

	env, err := types.NewEnvelope(types.EventCompleteReport, 0, report)
	if err != nil {
		c.pushError(types.ErrCodeInternal, "encode report", lineID)
		return
	}
	c.push(env)
}

// hourlyMetrics buckets the retained production history of the given posts
// into hour slots. Items and defects are counter deltas within each slot;
// efficiency is the average of the samples seen in it.
func (h *Hub) hourlyMetrics(postIDs []string, now time.Time) []types.HourlyMetric {
	since := now.Add(-reportWindow).Truncate(time.Hour)

	type bucket struct {
		items, defects int
		effSum         float64
		samples        int
	}
	buckets := make(map[int64]*bucket)

	for _, postID := range postIDs {
		hist := h.src.ProductionHistory(postID, since)

		// Per post, track the first and last counter value inside each hour.
		type span struct{ first, last types.ProductionUpdate }
		spans := make(map[int64]*span)
		for _, p := range hist {
			hour := p.At.Truncate(time.Hour).Unix()
			s, ok := spans[hour]
			if !ok {
				spans[hour] = &span{first: p, last: p}
			} else {
				s.last = p
			}
			b, ok := buckets[hour]
			if !ok {
				b = &bucket{}
				buckets[hour] = b
			}
			b.effSum += p.EfficiencyPct
			b.samples++
		}

		for hour, s := range spans {
			b := buckets[hour]
			if d := s.last.ItemsProduced - s.first.ItemsProduced; d > 0 {
				b.items += d
			}
			if d := s.last.DefectCount - s.first.DefectCount; d > 0 {
				b.defects += d
			}
		}
	}

	out := make([]types.HourlyMetric, 0, len(buckets))
	for hour, b := range buckets {
		m := types.HourlyMetric{
			Hour:          time.Unix(hour, 0).UTC(),
			ItemsProduced: b.items,
			DefectCount:   b.defects,
		}
		if b.samples > 0 {
			m.AverageEfficiencyPct = b.effSum / float64(b.samples)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}
