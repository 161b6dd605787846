package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort      = 8080
	DefaultTickInterval  = 5 * time.Second
	DefaultPollInterval  = 10 * time.Second
	DefaultSensorWindow  = 120
	DefaultProdWindow    = 2880 // ~8 hours of 10-second polls per post
	DefaultEventBuffer   = 256
	DefaultHealthEntries = 2880 // ~10 days of 5-minute scores per post
)

// Config is the top-level configuration parsed from config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the WebSocket hub listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// TickInterval is how often an active line generates a new snapshot.
	TickInterval time.Duration `yaml:"tick_interval"`

	// PollInterval is how often signal feeds are polled.
	PollInterval time.Duration `yaml:"poll_interval"`

	// RegistryFile is the path to the plant registry YAML
	// (lines, posts, maintenance schedules).
	RegistryFile string `yaml:"registry_file"`

	// Feeds is the list of signal feeds to poll.
	Feeds []Feed `yaml:"feeds"`

	// Simulator tunes the simulated feed and incident generation.
	Simulator SimulatorConfig `yaml:"simulator"`

	// Alerts holds webhook delivery targets for fired/resolved alerts.
	Alerts AlertsConfig `yaml:"alerts"`

	// History bounds the in-memory rolling buffers.
	History HistoryConfig `yaml:"history"`
}

// Feed describes one signal feed.
type Feed struct {
	// ID is a unique, human-readable identifier for this feed.
	ID string `yaml:"id"`

	// Type is the feed type: gateway | sim.
	Type string `yaml:"type"`

	// Endpoint is the metrics URL of a floor gateway (gateway feeds only).
	Endpoint string `yaml:"endpoint"`

	// Lines restricts the feed to the given line IDs. Empty means all lines.
	Lines []string `yaml:"lines"`
}

// SimulatorConfig tunes the simulated feed.
type SimulatorConfig struct {
	// Seed seeds the simulator's random source. 0 means seed from the clock.
	Seed int64 `yaml:"seed"`

	// AnomalyRate is the per-reading probability of an out-of-threshold
	// sensor value, in [0,1].
	AnomalyRate float64 `yaml:"anomaly_rate"`

	// IncidentRate is the per-tick, per-post probability of a random minor
	// incident, in [0,1]. Zero disables random incidents; rule-based
	// incidents still fire.
	IncidentRate float64 `yaml:"incident_rate"`
}

// AlertsConfig holds webhook delivery targets.
type AlertsConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// HistoryConfig bounds the in-memory rolling buffers.
type HistoryConfig struct {
	// SensorWindow is the number of readings kept per (post, sensor type).
	SensorWindow int `yaml:"sensor_window"`

	// ProductionWindow is the number of production updates kept per post.
	// Sized to cover the report's hourly buckets.
	ProductionWindow int `yaml:"production_window"`

	// EventBuffer is the number of floor events kept per line.
	EventBuffer int `yaml:"event_buffer"`

	// HealthEntries is the number of health score entries kept per post.
	HealthEntries int `yaml:"health_entries"`
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     DefaultHTTPPort,
			TickInterval: DefaultTickInterval,
			PollInterval: DefaultPollInterval,
			History: HistoryConfig{
				SensorWindow:     DefaultSensorWindow,
				ProductionWindow: DefaultProdWindow,
				EventBuffer:      DefaultEventBuffer,
				HealthEntries:    DefaultHealthEntries,
			},
		},
	}
}

// applyDefaults re-fills fields an explicit zero value in the file would have
// cleared, so "history: {}" does not disable buffering.
func applyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.HTTPPort == 0 {
		s.HTTPPort = DefaultHTTPPort
	}
	if s.TickInterval <= 0 {
		s.TickInterval = DefaultTickInterval
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.History.SensorWindow <= 0 {
		s.History.SensorWindow = DefaultSensorWindow
	}
	if s.History.ProductionWindow <= 0 {
		s.History.ProductionWindow = DefaultProdWindow
	}
	if s.History.EventBuffer <= 0 {
		s.History.EventBuffer = DefaultEventBuffer
	}
	if s.History.HealthEntries <= 0 {
		s.History.HealthEntries = DefaultHealthEntries
	}
}

func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", s.HTTPPort)
	}
	if s.RegistryFile == "" {
		return fmt.Errorf("registry_file is required")
	}
	seen := make(map[string]bool, len(s.Feeds))
	for _, f := range s.Feeds {
		if f.ID == "" {
			return fmt.Errorf("feed with empty id")
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate feed id %q", f.ID)
		}
		seen[f.ID] = true
		switch f.Type {
		case "sim":
		case "gateway":
			if f.Endpoint == "" {
				return fmt.Errorf("feed %q: gateway feeds need an endpoint", f.ID)
			}
		default:
			return fmt.Errorf("feed %q: unsupported type %q", f.ID, f.Type)
		}
	}
	if r := s.Simulator.AnomalyRate; r < 0 || r > 1 {
		return fmt.Errorf("simulator anomaly_rate %v out of [0,1]", r)
	}
	if r := s.Simulator.IncidentRate; r < 0 || r > 1 {
		return fmt.Errorf("simulator incident_rate %v out of [0,1]", r)
	}
	for _, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("unsupported webhook type %q", w.Type)
		}
	}
	return nil
}
