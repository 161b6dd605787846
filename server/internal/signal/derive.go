package signal

import (
	"time"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/registry"
)

// newReading builds a SensorReading from a raw value and the post's sensor
// spec, deriving the normality flag and alert level from the thresholds.
func newReading(p *registry.Post, spec registry.SensorSpec, value float64, at time.Time) types.SensorReading {
	r := types.SensorReading{
		PostID:       p.ID,
		Type:         spec.Type,
		Value:        value,
		Unit:         spec.Unit,
		At:           at,
		ThresholdMin: spec.Min,
		ThresholdMax: spec.Max,
		IsNormal:     value >= spec.Min && value <= spec.Max,
	}
	if !r.IsNormal {
		r.AlertLevel = spec.AlertLevel
	}
	return r
}

// deriveOEE computes the OEE breakdown from the per-post counters.
// Availability is approximated from the operational status; quality guards
// against zero production.
func deriveOEE(status types.PostStatus, efficiencyPct float64, items, defects int) types.OEEMetrics {
	var availability float64
	switch status {
	case types.PostRunning:
		availability = 100
	case types.PostDegraded:
		availability = 75
	case types.PostStopped:
		availability = 0
	}

	quality := 100.0
	if items > 0 {
		quality = (1 - float64(defects)/float64(items)) * 100
		if quality < 0 {
			quality = 0
		}
	}

	return types.OEEMetrics{
		AvailabilityPct: availability,
		PerformancePct:  efficiencyPct,
		QualityPct:      quality,
		OEEPct:          availability * efficiencyPct * quality / 10000,
	}
}

// statusFromCode maps the gateway's numeric status gauge to a PostStatus.
func statusFromCode(code float64) types.PostStatus {
	switch int(code) {
	case 1:
		return types.PostDegraded
	case 2:
		return types.PostStopped
	default:
		return types.PostRunning
	}
}
