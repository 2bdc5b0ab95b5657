// Package config loads the daemon configuration: built-in defaults,
// optionally overlaid by a yaml file named in STOPALARM_CONFIG, then by
// individual environment variables for the deployment-specific knobs.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"stopalarm/internal/decision"
	"stopalarm/internal/supervisor"
)

// DecisionConfig is the yaml shape of the decision tuning. Durations are
// plain seconds so operators never have to spell Go duration syntax.
type DecisionConfig struct {
	MaxFixAgeSeconds     int     `yaml:"max_fix_age_seconds"`
	MaxAccuracyM         float64 `yaml:"max_accuracy_m"`
	BucketM              float64 `yaml:"bucket_m"`
	RingSize             int     `yaml:"ring_size"`
	ExitMultiplier       float64 `yaml:"exit_multiplier"`
	ExitBufferM          float64 `yaml:"exit_buffer_m"`
	ConfirmCount         int     `yaml:"confirm_count"`
	ConfirmWindowSeconds int     `yaml:"confirm_window_seconds"`
	CooldownSeconds      int     `yaml:"cooldown_seconds"`
	MinSyncDeltaM        float64 `yaml:"min_sync_delta_m"`
}

// BandConfig is the yaml shape of one cadence band. MaxDistanceM of zero
// marks the open-ended far band.
type BandConfig struct {
	MaxDistanceM    float64 `yaml:"max_distance_m"`
	IntervalSeconds int     `yaml:"interval_seconds"`
	MinDeltaM       float64 `yaml:"min_delta_m"`
}

// RemoteConfig selects and parameterizes the remote session store.
type RemoteConfig struct {
	// Backend is "http" or "postgres".
	Backend     string `yaml:"backend"`
	BaseURL     string `yaml:"base_url"`
	Token       string `yaml:"token"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// QueueConfig bounds the durable local queues.
type QueueConfig struct {
	SyncCap            int `yaml:"sync_cap"`
	CreateCap          int `yaml:"create_cap"`
	HeartbeatCap       int `yaml:"heartbeat_cap"`
	DedupWindowSeconds int `yaml:"dedup_window_seconds"`
}

// AlertConfig shapes the user-facing notification.
type AlertConfig struct {
	Title      string `yaml:"title"`
	Body       string `yaml:"body"`
	WebhookURL string `yaml:"webhook_url"`
}

// Config defines daemon configuration.
type Config struct {
	HTTPAddr                 string         `yaml:"http_addr"`
	DBPath                   string         `yaml:"db_path"`
	LogDir                   string         `yaml:"log_dir"`
	JWTSecret                string         `yaml:"jwt_secret"`
	Remote                   RemoteConfig   `yaml:"remote"`
	Decision                 DecisionConfig `yaml:"decision"`
	Queue                    QueueConfig    `yaml:"queue"`
	Cadence                  []BandConfig   `yaml:"cadence"`
	Alert                    AlertConfig    `yaml:"alert"`
	ReconcileIntervalSeconds int            `yaml:"reconcile_interval_seconds"`
}

// LoadConfig loads config from defaults, yaml and env.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr: getenvDefault("STOPALARM_HTTP_ADDR", ":8080"),
		DBPath:   getenvDefault("STOPALARM_DB_PATH", filepath.FromSlash("var/stopalarm.db")),
		LogDir:   getenvDefault("STOPALARM_LOG_DIR", filepath.FromSlash("var/log")),
		Remote: RemoteConfig{
			Backend: getenvDefault("STOPALARM_REMOTE_BACKEND", "http"),
		},
		Queue: QueueConfig{
			SyncCap:            200,
			CreateCap:          32,
			HeartbeatCap:       500,
			DedupWindowSeconds: 30,
		},
		Alert: AlertConfig{
			Title: "Almost there",
			Body:  "You are within your alarm radius. Time to get off.",
		},
		ReconcileIntervalSeconds: 60,
	}

	if path := os.Getenv("STOPALARM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if value := os.Getenv("STOPALARM_JWT_SECRET"); value != "" {
		cfg.JWTSecret = value
	}
	if value := os.Getenv("STOPALARM_REMOTE_BASE_URL"); value != "" {
		cfg.Remote.BaseURL = value
	}
	if value := os.Getenv("STOPALARM_REMOTE_TOKEN"); value != "" {
		cfg.Remote.Token = value
	}
	if value := os.Getenv("STOPALARM_REMOTE_PG_DSN"); value != "" {
		cfg.Remote.PostgresDSN = value
	}
	if value := os.Getenv("STOPALARM_WEBHOOK_URL"); value != "" {
		cfg.Alert.WebhookURL = value
	}
	cfg.ReconcileIntervalSeconds = getenvIntDefault("STOPALARM_RECONCILE_INTERVAL_SECONDS", cfg.ReconcileIntervalSeconds)

	if cfg.JWTSecret == "" {
		return cfg, errors.New("config: jwt secret required")
	}
	switch cfg.Remote.Backend {
	case "http":
		if cfg.Remote.BaseURL == "" {
			return cfg, errors.New("config: remote base url required")
		}
	case "postgres":
		if cfg.Remote.PostgresDSN == "" {
			return cfg, errors.New("config: postgres dsn required")
		}
	default:
		return cfg, errors.New("config: unknown remote backend " + cfg.Remote.Backend)
	}
	return cfg, nil
}

// EngineConfig converts the yaml decision tuning to the engine config,
// filling every unset field from the engine defaults.
func (c Config) EngineConfig() decision.Config {
	out := decision.DefaultConfig()
	d := c.Decision
	if d.MaxFixAgeSeconds > 0 {
		out.MaxFixAge = time.Duration(d.MaxFixAgeSeconds) * time.Second
	}
	if d.MaxAccuracyM > 0 {
		out.MaxAccuracyM = d.MaxAccuracyM
	}
	if d.BucketM > 0 {
		out.BucketM = d.BucketM
	}
	if d.RingSize > 0 {
		out.RingSize = d.RingSize
	}
	if d.ExitMultiplier > 0 {
		out.ExitMultiplier = d.ExitMultiplier
	}
	if d.ExitBufferM > 0 {
		out.ExitBufferM = d.ExitBufferM
	}
	if d.ConfirmCount > 0 {
		out.ConfirmCount = d.ConfirmCount
	}
	if d.ConfirmWindowSeconds > 0 {
		out.ConfirmWindow = time.Duration(d.ConfirmWindowSeconds) * time.Second
	}
	if d.CooldownSeconds > 0 {
		out.Cooldown = time.Duration(d.CooldownSeconds) * time.Second
	}
	if d.MinSyncDeltaM > 0 {
		out.MinSyncDeltaM = d.MinSyncDeltaM
	}
	return out
}

// CadenceBands converts the configured bands, falling back to the built-in
// four-band policy when none are configured.
func (c Config) CadenceBands() []supervisor.Band {
	if len(c.Cadence) == 0 {
		return supervisor.DefaultBands()
	}
	bands := make([]supervisor.Band, 0, len(c.Cadence))
	for _, band := range c.Cadence {
		bands = append(bands, supervisor.Band{
			MaxDistanceM: band.MaxDistanceM,
			Interval:     time.Duration(band.IntervalSeconds) * time.Second,
			MinDeltaM:    band.MinDeltaM,
		})
	}
	return bands
}

// DedupWindow returns the sync queue dedup window.
func (c Config) DedupWindow() time.Duration {
	if c.Queue.DedupWindowSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Queue.DedupWindowSeconds) * time.Second
}

// ReconcileInterval returns the foreground reconcile cadence.
func (c Config) ReconcileInterval() time.Duration {
	if c.ReconcileIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
