package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linepulse/linepulse/pkg/types"
)

// State is the client connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Callbacks are the observer hooks for pushed events. Every field is
// optional; deliveries are at-most-once per event instance and there is no
// acknowledgement channel.
type Callbacks struct {
	OnInitialSnapshot func(types.LineSnapshot)
	OnSnapshotUpdate  func(types.LineSnapshot)
	OnDashboardUpdate func(types.DashboardUpdate)
	OnEventStream     func(types.EventStreamBatch)
	OnCompleteReport  func(types.CompleteReport)
	OnNewAlert        func(types.Alert)
	OnNewIncident     func(types.Incident)
	OnStateChange     func(State)
	OnError           func(error)
}

// dialFunc opens a WebSocket connection. Abstracted so tests can inject
// failures and in-memory servers.
type dialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

// Client manages one hub connection with automatic reconnection and
// re-subscription.
//
// All exported methods are safe for concurrent use.
type Client struct {
	url  string
	cb   Callbacks
	dial dialFunc

	mu    sync.Mutex
	state State
	subs  map[string][]string // lineID → post filter
	ws    *websocket.Conn
	wmu   sync.Mutex // serializes writes to ws
}

// New creates a Client for the given hub URL (ws://host:port/ws/stream).
func New(url string, cb Callbacks) *Client {
	return &Client{
		url:   url,
		cb:    cb,
		state: StateDisconnected,
		subs:  make(map[string][]string),
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Run connects and serves the connection until ctx is cancelled. On any
// transport failure it walks the reconnect ladder
// [0, 100, 500, 1000, 2000, 5000] ms, holding at the final delay, and after
// every reconnect re-issues Subscribe for every line watched before the drop.
func (c *Client) Run(ctx context.Context) {
	var bo ladder
	connectedBefore := false

	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		if connectedBefore {
			c.setState(StateReconnecting)
		} else {
			c.setState(StateConnecting)
		}

		ws, err := c.dial(ctx, c.url)
		if err != nil {
			c.notifyError(fmt.Errorf("stream: dial %s: %w", c.url, err))
			if !c.wait(ctx, bo.next()) {
				c.setState(StateDisconnected)
				return
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setState(StateConnected)
		bo.reset()
		connectedBefore = true

		c.resubscribe()

		err = c.readLoop(ctx, ws)
		ws.Close()
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		c.notifyError(fmt.Errorf("stream: connection lost: %w", err))
		if !c.wait(ctx, bo.next()) {
			c.setState(StateDisconnected)
			return
		}
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers interest in a line. The subscription is remembered and
// re-issued automatically after every reconnect. postIDs empty means all
// posts on the line.
func (c *Client) Subscribe(lineID string, postIDs ...string) error {
	c.mu.Lock()
	c.subs[lineID] = postIDs
	c.mu.Unlock()

	return c.send(types.Request{Action: types.ActionSubscribe, LineID: lineID, PostIDs: postIDs})
}

// Unsubscribe drops interest in a line, including across reconnects.
func (c *Client) Unsubscribe(lineID string) error {
	c.mu.Lock()
	delete(c.subs, lineID)
	c.mu.Unlock()

	return c.send(types.Request{Action: types.ActionUnsubscribe, LineID: lineID})
}

// RequestSnapshot asks for a one-shot full snapshot of a line.
func (c *Client) RequestSnapshot(lineID string, postIDs ...string) error {
	return c.send(types.Request{Action: types.ActionRequestSnapshot, LineID: lineID, PostIDs: postIDs})
}

// RequestEventStream asks for the last count floor events of a line.
func (c *Client) RequestEventStream(lineID string, count int) error {
	return c.send(types.Request{Action: types.ActionRequestEvents, LineID: lineID, Count: count})
}

// RequestCompleteReport asks for the full report of a line.
func (c *Client) RequestCompleteReport(lineID string, postIDs ...string) error {
	return c.send(types.Request{Action: types.ActionRequestReport, LineID: lineID, PostIDs: postIDs})
}

// Ping sends a liveness probe; the hub answers with a pong event.
func (c *Client) Ping() error {
	return c.send(types.Request{Action: types.ActionPing})
}

// RequestSubscriptionStatus asks the hub to report this connection's
// active subscriptions.
func (c *Client) RequestSubscriptionStatus() error {
	return c.send(types.Request{Action: types.ActionSubscriptionStatus})
}

// --- internal ---------------------------------------------------------------

// send writes one request frame. Subscribe/Unsubscribe tolerate being
// offline (the registration is replayed on reconnect); other requests fail.
func (c *Client) send(req types.Request) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		if req.Action == types.ActionSubscribe || req.Action == types.ActionUnsubscribe {
			return nil // remembered; replayed on reconnect
		}
		return fmt.Errorf("stream: not connected")
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := ws.WriteJSON(req); err != nil {
		return fmt.Errorf("stream: send %s: %w", req.Action, err)
	}
	return nil
}

// resubscribe replays every remembered subscription on a fresh connection.
func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string][]string, len(c.subs))
	for line, posts := range c.subs {
		subs[line] = posts
	}
	c.mu.Unlock()

	for line, posts := range subs {
		if err := c.send(types.Request{Action: types.ActionSubscribe, LineID: line, PostIDs: posts}); err != nil {
			c.notifyError(fmt.Errorf("stream: resubscribe %s: %w", line, err))
		} else {
			slog.Debug("stream: resubscribed", "line", line)
		}
	}
}

// readLoop decodes envelopes and fires callbacks until the connection fails.
func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.notifyError(fmt.Errorf("stream: malformed envelope: %w", err))
			continue
		}
		c.handle(env)
	}
}

// handle decodes one envelope payload and invokes the matching callback.
func (c *Client) handle(env types.Envelope) {
	fail := func(err error) {
		c.notifyError(fmt.Errorf("stream: decode %s: %w", env.Event, err))
	}

	switch env.Event {
	case types.EventInitialSnapshot:
		var snap types.LineSnapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			fail(err)
			return
		}
		if c.cb.OnInitialSnapshot != nil {
			c.cb.OnInitialSnapshot(snap)
		}

	case types.EventSnapshotUpdate:
		var snap types.LineSnapshot
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			fail(err)
			return
		}
		if c.cb.OnSnapshotUpdate != nil {
			c.cb.OnSnapshotUpdate(snap)
		}

	case types.EventDashboardUpdate:
		var upd types.DashboardUpdate
		if err := json.Unmarshal(env.Data, &upd); err != nil {
			fail(err)
			return
		}
		if c.cb.OnDashboardUpdate != nil {
			c.cb.OnDashboardUpdate(upd)
		}

	case types.EventStream:
		var batch types.EventStreamBatch
		if err := json.Unmarshal(env.Data, &batch); err != nil {
			fail(err)
			return
		}
		if c.cb.OnEventStream != nil {
			c.cb.OnEventStream(batch)
		}

	case types.EventCompleteReport:
		var rep types.CompleteReport
		if err := json.Unmarshal(env.Data, &rep); err != nil {
			fail(err)
			return
		}
		if c.cb.OnCompleteReport != nil {
			c.cb.OnCompleteReport(rep)
		}

	case types.EventNewAlert:
		var a types.Alert
		if err := json.Unmarshal(env.Data, &a); err != nil {
			fail(err)
			return
		}
		if c.cb.OnNewAlert != nil {
			c.cb.OnNewAlert(a)
		}

	case types.EventNewIncident:
		var inc types.Incident
		if err := json.Unmarshal(env.Data, &inc); err != nil {
			fail(err)
			return
		}
		if c.cb.OnNewIncident != nil {
			c.cb.OnNewIncident(inc)
		}

	case types.EventError:
		var p types.ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			fail(err)
			return
		}
		c.notifyError(fmt.Errorf("stream: hub error [%s]: %s", p.Code, p.Message))

	case types.EventPong, types.EventSubscriptionStatus:
		// Liveness and status replies are informational; nothing to fan out
		// beyond logging.
		slog.Debug("stream: received", "event", env.Event)

	default:
		slog.Debug("stream: ignoring unknown event", "event", env.Event)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.cb.OnStateChange != nil {
		c.cb.OnStateChange(s)
	}
}

func (c *Client) notifyError(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

// wait sleeps for d, returning false if ctx is cancelled first.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
