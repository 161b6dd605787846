package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linepulse/linepulse/pkg/types"
)

func TestLadderDelays(t *testing.T) {
	want := []time.Duration{
		0,
		100 * time.Millisecond,
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		5 * time.Second,
	}

	var l ladder
	for i, w := range want {
		if got := l.next(); got != w {
			t.Fatalf("rung %d = %v, want %v", i, got, w)
		}
	}
	// Holds at the top.
	for i := 0; i < 3; i++ {
		if got := l.next(); got != 5*time.Second {
			t.Fatalf("saturated rung = %v, want 5s", got)
		}
	}

	l.reset()
	if got := l.next(); got != 0 {
		t.Fatalf("after reset, first rung = %v, want 0", got)
	}
}

// fakeHub is a minimal WebSocket endpoint for exercising the client. Every
// accepted connection is reported on conns; received requests go to reqs.
type fakeHub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	wss   []*websocket.Conn
	conns chan *websocket.Conn
	reqs  chan types.Request
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		conns: make(chan *websocket.Conn, 8),
		reqs:  make(chan types.Request, 32),
	}
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.wss = append(f.wss, ws)
	f.mu.Unlock()
	f.conns <- ws

	for {
		var req types.Request
		if err := ws.ReadJSON(&req); err != nil {
			return
		}
		f.reqs <- req
	}
}

func (f *fakeHub) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ws := range f.wss {
		ws.Close()
	}
	f.wss = nil
}

func startFakeHub(t *testing.T) (*fakeHub, string) {
	t.Helper()
	f := newFakeHub()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitConn(t *testing.T, f *fakeHub) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-f.conns:
		return ws
	case <-time.After(2 * time.Second):
		t.Fatal("no connection arrived")
		return nil
	}
}

func waitReq(t *testing.T, f *fakeHub) types.Request {
	t.Helper()
	select {
	case req := <-f.reqs:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request arrived")
		return types.Request{}
	}
}

func TestRunDeliversEvents(t *testing.T) {
	f, url := startFakeHub(t)

	snapshots := make(chan types.LineSnapshot, 1)
	alertsCh := make(chan types.Alert, 1)
	c := New(url, Callbacks{
		OnInitialSnapshot: func(s types.LineSnapshot) { snapshots <- s },
		OnNewAlert:        func(a types.Alert) { alertsCh <- a },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	if err := c.Subscribe("line-1"); err != nil {
		t.Fatal(err)
	}

	ws := waitConn(t, f)
	if req := waitReq(t, f); req.Action != types.ActionSubscribe || req.LineID != "line-1" {
		t.Fatalf("server saw %+v, want subscribe line-1", req)
	}

	env, err := types.NewEnvelope(types.EventInitialSnapshot, 1, types.LineSnapshot{LineID: "line-1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(env); err != nil {
		t.Fatal(err)
	}
	select {
	case snap := <-snapshots:
		if snap.LineID != "line-1" {
			t.Errorf("snapshot line = %s", snap.LineID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial snapshot callback never fired")
	}

	env, err = types.NewEnvelope(types.EventNewAlert, 2, types.Alert{ID: "a1", PostID: "post-1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteJSON(env); err != nil {
		t.Fatal(err)
	}
	select {
	case a := <-alertsCh:
		if a.ID != "a1" {
			t.Errorf("alert = %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alert callback never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.State() != StateDisconnected {
		t.Errorf("final state = %s, want disconnected", c.State())
	}
}

func TestResubscribeAfterReconnect(t *testing.T) {
	f, url := startFakeHub(t)

	c := New(url, Callbacks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	if err := c.Subscribe("line-1", "post-2"); err != nil {
		t.Fatal(err)
	}

	waitConn(t, f)
	first := waitReq(t, f)
	if first.Action != types.ActionSubscribe {
		t.Fatalf("first request = %+v", first)
	}

	// Server drops the connection; the client must reconnect and re-subscribe
	// without any caller involvement.
	f.closeAll()

	waitConn(t, f)
	second := waitReq(t, f)
	if second.Action != types.ActionSubscribe || second.LineID != "line-1" {
		t.Fatalf("after reconnect got %+v, want subscribe line-1", second)
	}
	if len(second.PostIDs) != 1 || second.PostIDs[0] != "post-2" {
		t.Errorf("post filter not replayed: %v", second.PostIDs)
	}
}

func TestUnsubscribeNotReplayed(t *testing.T) {
	f, url := startFakeHub(t)

	c := New(url, Callbacks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitConn(t, f)

	if err := c.Subscribe("line-1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Subscribe("line-2"); err != nil {
		t.Fatal(err)
	}
	waitReq(t, f)
	waitReq(t, f)

	if err := c.Unsubscribe("line-2"); err != nil {
		t.Fatal(err)
	}
	if req := waitReq(t, f); req.Action != types.ActionUnsubscribe {
		t.Fatalf("expected unsubscribe, got %+v", req)
	}

	f.closeAll()
	waitConn(t, f)

	replayed := waitReq(t, f)
	if replayed.LineID != "line-1" {
		t.Errorf("replayed %s, want only line-1", replayed.LineID)
	}
	select {
	case extra := <-f.reqs:
		t.Errorf("unexpected replay: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestStateTransitions(t *testing.T) {
	f, url := startFakeHub(t)

	var mu sync.Mutex
	var states []State
	c := New(url, Callbacks{
		OnStateChange: func(s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitConn(t, f)
	waitState := func(want State) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if c.State() == want {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatalf("state never reached %s (now %s)", want, c.State())
	}
	waitState(StateConnected)

	f.closeAll()
	waitConn(t, f) // reconnected
	waitState(StateConnected)

	mu.Lock()
	got := append([]State(nil), states...)
	mu.Unlock()

	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}
	if len(got) < len(want) {
		t.Fatalf("transitions = %v, want at least %v", got, want)
	}
	for i, s := range want {
		if got[i] != s {
			t.Fatalf("transition %d = %s, want %s (all: %v)", i, got[i], s, got)
		}
	}
}

func TestDialFailureRetries(t *testing.T) {
	c := New("ws://unused", Callbacks{})

	var attempts atomic.Int32
	c.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	}

	errs := make(chan error, 16)
	c.cb.OnError = func(err error) { errs <- err }

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	// Ladder start is [0, 100ms, 500ms, ...]: within 250ms the dial must have
	// been attempted at least twice but cannot have burned through the ladder.
	n := attempts.Load()
	if n < 2 || n > 4 {
		t.Errorf("dial attempts = %d, want 2..4 within 250ms", n)
	}
	if len(errs) == 0 {
		t.Error("no dial errors surfaced")
	}
	if c.State() != StateDisconnected {
		t.Errorf("final state = %s, want disconnected", c.State())
	}
}

func TestSendWhileOffline(t *testing.T) {
	c := New("ws://unused", Callbacks{})

	// Subscriptions are remembered for replay, so registering offline is fine.
	if err := c.Subscribe("line-1"); err != nil {
		t.Errorf("offline Subscribe = %v, want nil", err)
	}
	if err := c.Unsubscribe("line-1"); err != nil {
		t.Errorf("offline Unsubscribe = %v, want nil", err)
	}

	// One-shot requests need a live connection.
	if err := c.RequestSnapshot("line-1"); err == nil {
		t.Error("offline RequestSnapshot succeeded")
	}
	if err := c.Ping(); err == nil {
		t.Error("offline Ping succeeded")
	}
	if err := c.RequestCompleteReport("line-1"); err == nil {
		t.Error("offline RequestCompleteReport succeeded")
	}
}
