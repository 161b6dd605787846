package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linepulse/linepulse/pkg/types"

	"github.com/linepulse/linepulse/server/internal/config"
)

func captureServer(t *testing.T, bodies chan<- []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testAlert() types.Alert {
	return types.Alert{
		ID:          "abc123",
		LineID:      "line-1",
		PostID:      "post-7",
		Title:       "Critical health score",
		Description: "Health score 40 is below 50",
		Severity:    types.SeverityCritical,
		Status:      types.AlertNew,
	}
}

func TestDeliverSlack(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := captureServer(t, bodies)
	t.Setenv("TEST_SLACK_URL", srv.URL)

	e := NewEngine(config.AlertsConfig{Webhooks: []config.WebhookConfig{
		{Type: "slack", URLEnv: "TEST_SLACK_URL"},
	}})
	e.deliver(testAlert())

	select {
	case body := <-bodies:
		var payload map[string]string
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("slack payload not JSON: %v", err)
		}
		text := payload["text"]
		if !strings.Contains(text, "CRITICAL") || !strings.Contains(text, "post-7") {
			t.Errorf("slack text = %q", text)
		}
	default:
		t.Fatal("slack webhook never called")
	}
}

func TestDeliverTeams(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := captureServer(t, bodies)
	t.Setenv("TEST_TEAMS_URL", srv.URL)

	e := NewEngine(config.AlertsConfig{Webhooks: []config.WebhookConfig{
		{Type: "teams", URLEnv: "TEST_TEAMS_URL"},
	}})
	e.deliver(testAlert())

	select {
	case body := <-bodies:
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("teams payload not JSON: %v", err)
		}
		if payload["@type"] != "MessageCard" {
			t.Errorf("@type = %v", payload["@type"])
		}
		if payload["themeColor"] != severityColor(types.SeverityCritical) {
			t.Errorf("themeColor = %v", payload["themeColor"])
		}
	default:
		t.Fatal("teams webhook never called")
	}
}

func TestDeliverGenericHTTP(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := captureServer(t, bodies)
	t.Setenv("TEST_HTTP_URL", srv.URL)

	e := NewEngine(config.AlertsConfig{Webhooks: []config.WebhookConfig{
		{Type: "http", URLEnv: "TEST_HTTP_URL"},
	}})
	e.deliver(testAlert())

	select {
	case body := <-bodies:
		var payload struct {
			Alert types.Alert `json:"alert"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("http payload not JSON: %v", err)
		}
		if payload.Alert.ID != "abc123" {
			t.Errorf("alert = %+v", payload.Alert)
		}
	default:
		t.Fatal("http webhook never called")
	}
}

func TestDeliverSkipsUnresolvedURL(t *testing.T) {
	// URLEnv not set: the target must be skipped without error or panic.
	e := NewEngine(config.AlertsConfig{Webhooks: []config.WebhookConfig{
		{Type: "slack", URLEnv: "DEFINITELY_NOT_SET_ANYWHERE"},
	}})
	e.deliver(testAlert())
}

func TestPostRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewEngine(config.AlertsConfig{})
	if err := e.post(srv.URL, []byte(`{}`)); err == nil {
		t.Fatal("post accepted an HTTP 502")
	}
}

func TestSetWebhooksAppliesToLaterDeliveries(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := captureServer(t, bodies)
	t.Setenv("TEST_RELOAD_URL", srv.URL)

	// Starts with no targets; a delivery goes nowhere.
	e := NewEngine(config.AlertsConfig{})
	e.deliver(testAlert())
	select {
	case <-bodies:
		t.Fatal("delivery with no targets reached the webhook")
	default:
	}

	// After a hot-reload style swap, deliveries hit the new target.
	e.SetWebhooks([]config.WebhookConfig{{Type: "http", URLEnv: "TEST_RELOAD_URL"}})
	e.deliver(testAlert())
	select {
	case body := <-bodies:
		var payload struct {
			Alert types.Alert `json:"alert"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("payload not JSON: %v", err)
		}
		if payload.Alert.ID != "abc123" {
			t.Errorf("alert = %+v", payload.Alert)
		}
	default:
		t.Fatal("swapped-in webhook never called")
	}

	// Clearing the targets stops deliveries again.
	e.SetWebhooks(nil)
	e.deliver(testAlert())
	select {
	case <-bodies:
		t.Fatal("delivery after clearing targets reached the webhook")
	default:
	}
}
