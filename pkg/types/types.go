package types

import "time"

// SensorType identifies the physical quantity a sensor measures.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorVibration   SensorType = "vibration"
	SensorOilLevel    SensorType = "oil_level"
	SensorPressure    SensorType = "pressure"
	SensorCurrent     SensorType = "current"
)

// Severity classifies alerts, incidents and sensor alert levels.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertStatus is the lifecycle state of an Alert.
type AlertStatus string

const (
	AlertNew          AlertStatus = "new"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// PostStatus is the operational state of a workstation.
type PostStatus string

const (
	PostRunning  PostStatus = "running"
	PostDegraded PostStatus = "degraded"
	PostStopped  PostStatus = "stopped"
)

// HealthStatus is the named band a health score falls into.
type HealthStatus string

const (
	HealthGood      HealthStatus = "good"
	HealthWarning   HealthStatus = "warning"
	HealthScheduled HealthStatus = "scheduled"
	HealthCritical  HealthStatus = "critical"
)

// ScheduleStatus is the state of a maintenance schedule record.
type ScheduleStatus string

const (
	SchedulePending    ScheduleStatus = "pending"
	ScheduleInProgress ScheduleStatus = "in_progress"
	ScheduleCompleted  ScheduleStatus = "completed"
)

// SensorReading is one observed value for a (post, sensor type) pair.
// Readings are immutable; a newer reading supersedes the previous one.
type SensorReading struct {
	PostID       string     `json:"post_id"`
	Type         SensorType `json:"type"`
	Value        float64    `json:"value"`
	Unit         string     `json:"unit"`
	At           time.Time  `json:"at"`
	ThresholdMin float64    `json:"threshold_min"`
	ThresholdMax float64    `json:"threshold_max"`
	IsNormal     bool       `json:"is_normal"`
	// AlertLevel is the severity an out-of-threshold reading should alert
	// with. Empty when the reading is within thresholds.
	AlertLevel Severity `json:"alert_level,omitempty"`
}

// OEEMetrics is the Overall Equipment Effectiveness breakdown for one post.
// All fields are percentages in 0–100.
type OEEMetrics struct {
	AvailabilityPct float64 `json:"availability_pct"`
	PerformancePct  float64 `json:"performance_pct"`
	QualityPct      float64 `json:"quality_pct"`
	OEEPct          float64 `json:"oee_pct"`
}

// ProductionUpdate is the per-post production counter state for one tick.
// The latest instance for a post represents its current state.
type ProductionUpdate struct {
	PostID           string     `json:"post_id"`
	LineID           string     `json:"line_id"`
	At               time.Time  `json:"at"`
	ItemsProduced    int        `json:"items_produced"`
	DefectCount      int        `json:"defect_count"`
	EfficiencyPct    float64    `json:"efficiency_pct"`
	Status           PostStatus `json:"status"`
	CycleTimeSeconds float64    `json:"cycle_time_seconds"`
	OEE              OEEMetrics `json:"oee"`
}

// HealthScoreEntry is one computed health score for a post.
type HealthScoreEntry struct {
	PostID     string       `json:"post_id"`
	Score      float64      `json:"score"`
	Status     HealthStatus `json:"status"`
	ComputedAt time.Time    `json:"computed_at"`
}

// Alert is a maintenance warning produced by the rule engine. The ID is
// deterministic per (post, rule) so re-evaluating the same condition on a
// later tick dedupes instead of duplicating.
type Alert struct {
	ID             string      `json:"id"`
	LineID         string      `json:"line_id"`
	PostID         string      `json:"post_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Severity       Severity    `json:"severity"`
	CreatedAt      time.Time   `json:"created_at"`
	DueDate        time.Time   `json:"due_date"`
	Status         AlertStatus `json:"status"`
	RequiredAction string      `json:"required_action"`
}

// Incident is a production-stoppage event, independent of the Alert lifecycle.
type Incident struct {
	ID                       string    `json:"id"`
	PostID                   string    `json:"post_id"`
	LineID                   string    `json:"line_id"`
	Kind                     string    `json:"kind"`
	Severity                 Severity  `json:"severity"`
	At                       time.Time `json:"at"`
	EstimatedDowntimeMinutes int       `json:"estimated_downtime_minutes"`
	RequiresIntervention     bool      `json:"requires_intervention"`
	Status                   string    `json:"status"`
}

// LineMetrics is the line-level fold over all posts in a snapshot.
type LineMetrics struct {
	AverageHealthScore   float64    `json:"average_health_score"`
	AverageEfficiencyPct float64    `json:"average_efficiency_pct"`
	TotalItemsProduced   int        `json:"total_items_produced"`
	QualityRatePct       float64    `json:"quality_rate_pct"`
	LineStatus           PostStatus `json:"line_status"`
}

// LineSnapshot is the full derived state of one line at one instant.
// Snapshots are immutable values; callers must not mutate the slices.
type LineSnapshot struct {
	LineID         string             `json:"line_id"`
	At             time.Time          `json:"at"`
	SensorReadings []SensorReading    `json:"sensor_readings"`
	Production     []ProductionUpdate `json:"production"`
	Alerts         []Alert            `json:"alerts"`
	HealthScores   []HealthScoreEntry `json:"health_scores"`
	Incidents      []Incident         `json:"incidents"`
	Metrics        LineMetrics        `json:"metrics"`
}

// HealthScoreChange reports one post whose score moved past the noise filter.
type HealthScoreChange struct {
	PostID   string       `json:"post_id"`
	Previous float64      `json:"previous"`
	Current  float64      `json:"current"`
	Status   HealthStatus `json:"status"`
}

// ProductionChange reports one post whose status or efficiency moved.
type ProductionChange struct {
	PostID        string     `json:"post_id"`
	Status        PostStatus `json:"status"`
	EfficiencyPct float64    `json:"efficiency_pct"`
	ItemsProduced int        `json:"items_produced"`
}

// ChangeSet is the minimal delta between two consecutive snapshots of the
// same line. It is derived, stateless and discarded after delivery.
type ChangeSet struct {
	HealthScoreChanges []HealthScoreChange `json:"health_score_changes"`
	NewAlerts          []Alert             `json:"new_alerts"`
	ProductionChanges  []ProductionChange  `json:"production_changes"`
	NewIncidents       []Incident          `json:"new_incidents"`
	HasAnyChanges      bool                `json:"has_any_changes"`
}

// FloorEvent is one synthetic floor event served by the event stream.
type FloorEvent struct {
	ID      string    `json:"id"`
	LineID  string    `json:"line_id"`
	PostID  string    `json:"post_id,omitempty"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Schedule is one maintenance schedule record for a post. The trigger
// counters drive the health score; a zero trigger means "not configured".
type Schedule struct {
	ID                string         `json:"id" yaml:"id"`
	PostID            string         `json:"post_id" yaml:"post_id"`
	Status            ScheduleStatus `json:"status" yaml:"status"`
	ScheduledDate     time.Time      `json:"scheduled_date" yaml:"scheduled_date"`
	CompletedDate     *time.Time     `json:"completed_date,omitempty" yaml:"completed_date"`
	TriggerUsageHours float64        `json:"trigger_usage_hours" yaml:"trigger_usage_hours"`
	CurrentUsageHours float64        `json:"current_usage_hours" yaml:"current_usage_hours"`
	TriggerCycleCount float64        `json:"trigger_cycle_count" yaml:"trigger_cycle_count"`
	CurrentCycleCount float64        `json:"current_cycle_count" yaml:"current_cycle_count"`
}

// LineKPIs is the maintenance KPI fold over all posts of a line.
type LineKPIs struct {
	MTBFHours       float64 `json:"mtbf_hours"`
	MTTRHours       float64 `json:"mttr_hours"`
	AvailabilityPct float64 `json:"availability_pct"`
	OverdueRatePct  float64 `json:"overdue_rate_pct"`
	AverageHealth   float64 `json:"average_health"`
}

// AlertCounts tallies alerts by severity for dashboard badges.
type AlertCounts struct {
	Info     int `json:"info"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
}

// HourlyMetric is one hour bucket of production totals for a report.
type HourlyMetric struct {
	Hour                 time.Time `json:"hour"`
	ItemsProduced        int       `json:"items_produced"`
	DefectCount          int       `json:"defect_count"`
	AverageEfficiencyPct float64   `json:"average_efficiency_pct"`
}

// CompleteReport is the full on-demand report for one line.
type CompleteReport struct {
	Snapshot      LineSnapshot   `json:"snapshot"`
	Hourly        []HourlyMetric `json:"hourly"`
	KPIs          LineKPIs       `json:"kpis"`
	AlertCounts   AlertCounts    `json:"alert_counts"`
	OpenIncidents int            `json:"open_incidents"`
	GeneratedAt   time.Time      `json:"generated_at"`
}
