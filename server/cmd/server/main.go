package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/linepulse/linepulse/server/internal/alerts"
	"github.com/linepulse/linepulse/server/internal/config"
	"github.com/linepulse/linepulse/server/internal/health"
	"github.com/linepulse/linepulse/server/internal/hub"
	"github.com/linepulse/linepulse/server/internal/registry"
	sig "github.com/linepulse/linepulse/server/internal/signal"
	"github.com/linepulse/linepulse/server/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("linepulse-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	reg, err := registry.Load(cfg.Server.RegistryFile)
	if err != nil {
		slog.Error("failed to load registry", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"tick_interval", cfg.Server.TickInterval,
		"poll_interval", cfg.Server.PollInterval,
		"lines", len(reg.Lines()),
		"feeds", len(cfg.Server.Feeds),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Build feed instances from the config. A config with no feeds gets the
	// simulator so the dashboard always has data.
	var feeds []sig.Feed
	for _, fc := range cfg.Server.Feeds {
		switch fc.Type {
		case "gateway":
			feeds = append(feeds, sig.NewGateway(fc, reg))
		case "sim":
			feeds = append(feeds, sig.NewSim(fc.ID, reg, cfg.Server.Simulator.Seed, cfg.Server.Simulator.AnomalyRate))
		}
		slog.Info("registered feed", "id", fc.ID, "type", fc.Type)
	}
	if len(feeds) == 0 {
		slog.Warn("no feeds configured, falling back to the simulator")
		feeds = append(feeds, sig.NewSim("sim", reg, cfg.Server.Simulator.Seed, cfg.Server.Simulator.AnomalyRate))
	}

	src := sig.NewSource(feeds, cfg.Server.PollInterval,
		cfg.Server.History.SensorWindow, cfg.Server.History.ProductionWindow)
	go src.Run(ctx)

	healthEngine := health.NewEngine(cfg.Server.History.HealthEntries)
	alertEngine := alerts.NewEngine(cfg.Server.Alerts)
	agg := snapshot.New(reg, src, healthEngine, alertEngine,
		cfg.Server.Simulator.IncidentRate, cfg.Server.Simulator.Seed)

	// The hub generates snapshots per active line and pushes change sets
	// to subscribers.
	h := hub.New(reg, agg, src, cfg.Server.TickInterval, cfg.Server.History.EventBuffer)
	go h.Run(ctx)

	// Watch the config file and apply what can change at runtime: webhook
	// targets, incident rate and anomaly rate. Feed topology and the listen
	// port stay fixed until restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			alertEngine.SetWebhooks(updated.Server.Alerts.Webhooks)
			agg.SetIncidentRate(updated.Server.Simulator.IncidentRate)
			for _, f := range feeds {
				if tuner, ok := f.(sig.AnomalyTuner); ok {
					tuner.SetAnomalyRate(updated.Server.Simulator.AnomalyRate)
				}
			}
			slog.Info("config hot-reloaded",
				"webhooks", len(updated.Server.Alerts.Webhooks),
				"incident_rate", updated.Server.Simulator.IncidentRate,
				"anomaly_rate", updated.Server.Simulator.AnomalyRate)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws/stream", h)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: mux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("linepulse-server shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
