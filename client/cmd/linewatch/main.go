package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/linepulse/linepulse/client/internal/stream"
	"github.com/linepulse/linepulse/pkg/types"
)

// postCount reports how many posts a snapshot covers. Health scores carry
// exactly one entry per post; production entries can lag behind on posts the
// feeds have not sampled yet.
func postCount(snap types.LineSnapshot) int {
	return len(snap.HealthScores)
}

// linewatch is a terminal consumer for the hub: it subscribes to one line and
// prints pushed snapshots, change sets, alerts and incidents as they arrive.
func main() {
	url := flag.String("url", "ws://localhost:8080/ws/stream", "hub WebSocket URL")
	line := flag.String("line", "", "line ID to watch (required)")
	posts := flag.String("posts", "", "comma-separated post IDs (empty = whole line)")
	report := flag.Bool("report", false, "request a complete report after the first snapshot")
	flag.Parse()

	if *line == "" {
		fmt.Fprintln(os.Stderr, "linewatch: -line is required")
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var postIDs []string
	if *posts != "" {
		postIDs = strings.Split(*posts, ",")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var client *stream.Client
	gotSnapshot := make(chan struct{}, 1)

	client = stream.New(*url, stream.Callbacks{
		OnStateChange: func(s stream.State) {
			slog.Info("connection state", "state", s)
		},
		OnInitialSnapshot: func(snap types.LineSnapshot) {
			slog.Info("initial snapshot",
				"line", snap.LineID,
				"posts", postCount(snap),
				"efficiency", fmt.Sprintf("%.1f%%", snap.Metrics.AverageEfficiencyPct),
				"open_alerts", len(snap.Alerts),
			)
			select {
			case gotSnapshot <- struct{}{}:
			default:
			}
		},
		OnSnapshotUpdate: func(snap types.LineSnapshot) {
			slog.Info("full snapshot refresh", "line", snap.LineID, "posts", postCount(snap))
		},
		OnDashboardUpdate: func(upd types.DashboardUpdate) {
			ch := upd.Changes
			slog.Info("update",
				"line", upd.LineID,
				"health_changes", len(ch.HealthScoreChanges),
				"production_changes", len(ch.ProductionChanges),
				"new_alerts", len(ch.NewAlerts),
				"new_incidents", len(ch.NewIncidents),
			)
			for _, hc := range ch.HealthScoreChanges {
				slog.Info("health moved",
					"post", hc.PostID,
					"from", fmt.Sprintf("%.1f", hc.Previous),
					"to", fmt.Sprintf("%.1f", hc.Current),
					"status", hc.Status,
				)
			}
		},
		OnNewAlert: func(a types.Alert) {
			slog.Warn("ALERT", "post", a.PostID, "severity", a.Severity, "title", a.Title)
		},
		OnNewIncident: func(inc types.Incident) {
			slog.Warn("INCIDENT",
				"post", inc.PostID,
				"severity", inc.Severity,
				"kind", inc.Kind,
				"est_downtime_min", inc.EstimatedDowntimeMinutes,
			)
		},
		OnCompleteReport: func(rep types.CompleteReport) {
			slog.Info("complete report",
				"line", rep.Snapshot.LineID,
				"hours", len(rep.Hourly),
				"mtbf_hours", fmt.Sprintf("%.1f", rep.KPIs.MTBFHours),
				"availability", fmt.Sprintf("%.1f%%", rep.KPIs.AvailabilityPct),
				"open_incidents", rep.OpenIncidents,
			)
		},
		OnEventStream: func(batch types.EventStreamBatch) {
			for _, ev := range batch.Events {
				slog.Info("event", "kind", ev.Kind, "post", ev.PostID, "message", ev.Message)
			}
		},
		OnError: func(err error) {
			slog.Error("stream error", "err", err)
		},
	})

	if err := client.Subscribe(*line, postIDs...); err != nil {
		slog.Error("subscribe failed", "err", err)
		os.Exit(1)
	}

	if *report {
		go func() {
			select {
			case <-gotSnapshot:
				if err := client.RequestCompleteReport(*line, postIDs...); err != nil {
					slog.Error("report request failed", "err", err)
				}
			case <-ctx.Done():
			}
		}()
	}

	slog.Info("watching", "url", *url, "line", *line)
	client.Run(ctx)
}
