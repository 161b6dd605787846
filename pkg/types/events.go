package types

import (
	"encoding/json"
	"fmt"
)

// EventType tags every message the hub pushes to a connection.
type EventType string

const (
	EventInitialSnapshot    EventType = "initial_snapshot"
	EventSnapshotUpdate     EventType = "snapshot_update"
	EventDashboardUpdate    EventType = "dashboard_update"
	EventStream             EventType = "event_stream"
	EventCompleteReport     EventType = "complete_report"
	EventNewAlert           EventType = "new_alert"
	EventNewIncident        EventType = "new_incident"
	EventError              EventType = "error"
	EventPong               EventType = "pong"
	EventSubscriptionStatus EventType = "subscription_status"
)

// Envelope is the wire frame for every pushed event. Seq is monotonically
// increasing per line for line-scoped events, 0 for connection-scoped ones.
type Envelope struct {
	Event EventType       `json:"event"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into a tagged envelope.
func NewEnvelope(event EventType, seq uint64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope %s: marshal payload: %w", event, err)
	}
	return Envelope{Event: event, Seq: seq, Data: data}, nil
}

// DashboardUpdate carries a ChangeSet together with the full snapshot it was
// diffed against, so consumers never have to reconstruct state from deltas.
type DashboardUpdate struct {
	LineID   string       `json:"line_id"`
	Changes  ChangeSet    `json:"changes"`
	Snapshot LineSnapshot `json:"snapshot"`
}

// EventStreamBatch is the payload of an event_stream push.
type EventStreamBatch struct {
	LineID string       `json:"line_id"`
	Events []FloorEvent `json:"events"`
}

// ErrorCode classifies hub-side request and delivery failures on the wire.
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeTransport  ErrorCode = "transport"
	ErrCodeInternal   ErrorCode = "internal"
)

// ErrorPayload is the payload of an error push.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	LineID  string    `json:"line_id,omitempty"`
}

// Action names a client→hub request.
type Action string

const (
	ActionSubscribe          Action = "subscribe"
	ActionUnsubscribe        Action = "unsubscribe"
	ActionRequestSnapshot    Action = "request_snapshot"
	ActionRequestEvents      Action = "request_event_stream"
	ActionRequestReport      Action = "request_complete_report"
	ActionPing               Action = "ping"
	ActionSubscriptionStatus Action = "subscription_status"
)

// Request is the single client→hub request shape. Fields beyond Action are
// interpreted per action; unused ones are ignored.
type Request struct {
	Action  Action   `json:"action"`
	LineID  string   `json:"line_id,omitempty"`
	PostIDs []string `json:"post_ids,omitempty"`
	Count   int      `json:"count,omitempty"`
}

// SubscriptionInfo describes one active subscription of a connection.
// An empty PostIDs slice means "all posts on the line".
type SubscriptionInfo struct {
	LineID  string   `json:"line_id"`
	PostIDs []string `json:"post_ids,omitempty"`
}

// SubscriptionStatus is the payload of a subscription_status push.
type SubscriptionStatus struct {
	ConnectionID  string             `json:"connection_id"`
	Subscriptions []SubscriptionInfo `json:"subscriptions"`
}
