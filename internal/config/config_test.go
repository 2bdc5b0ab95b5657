package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("STOPALARM_JWT_SECRET", "secret-1")
	t.Setenv("STOPALARM_REMOTE_BASE_URL", "https://alarms.example.com")
	t.Setenv("STOPALARM_WEBHOOK_URL", "https://hooks.example.com/alarm")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("want default addr, got %s", cfg.HTTPAddr)
	}
	if cfg.Remote.Backend != "http" || cfg.Remote.BaseURL != "https://alarms.example.com" {
		t.Fatalf("remote config mismatch: %+v", cfg.Remote)
	}
	if cfg.Alert.WebhookURL != "https://hooks.example.com/alarm" {
		t.Fatalf("webhook override missing: %+v", cfg.Alert)
	}
	if cfg.Queue.SyncCap != 200 || cfg.Queue.CreateCap != 32 {
		t.Fatalf("queue defaults mismatch: %+v", cfg.Queue)
	}
}

func TestLoadConfigRequiresSecretAndRemote(t *testing.T) {
	t.Setenv("STOPALARM_JWT_SECRET", "")
	t.Setenv("STOPALARM_REMOTE_BASE_URL", "https://alarms.example.com")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("want error without jwt secret")
	}

	t.Setenv("STOPALARM_JWT_SECRET", "secret-1")
	t.Setenv("STOPALARM_REMOTE_BASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("want error without remote base url")
	}

	t.Setenv("STOPALARM_REMOTE_BACKEND", "postgres")
	t.Setenv("STOPALARM_REMOTE_PG_DSN", "postgres://localhost/stopalarm")
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("postgres backend with dsn should load: %v", err)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http_addr: ":9090"
decision:
  confirm_count: 3
  confirm_window_seconds: 40
cadence:
  - max_distance_m: 500
    interval_seconds: 10
    min_delta_m: 10
  - max_distance_m: 0
    interval_seconds: 120
    min_delta_m: 400
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STOPALARM_CONFIG", path)
	t.Setenv("STOPALARM_JWT_SECRET", "secret-1")
	t.Setenv("STOPALARM_REMOTE_BASE_URL", "https://alarms.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("yaml addr not applied: %s", cfg.HTTPAddr)
	}

	engine := cfg.EngineConfig()
	if engine.ConfirmCount != 3 || engine.ConfirmWindow != 40*time.Second {
		t.Fatalf("decision overrides not applied: %+v", engine)
	}
	// Unset fields keep engine defaults.
	if engine.RingSize != 5 || engine.BucketM != 10 {
		t.Fatalf("defaults lost: %+v", engine)
	}

	bands := cfg.CadenceBands()
	if len(bands) != 2 || bands[0].Interval != 10*time.Second || bands[1].MinDeltaM != 400 {
		t.Fatalf("cadence bands mismatch: %+v", bands)
	}
}

func TestConfigFallbackHelpers(t *testing.T) {
	var cfg Config
	if got := cfg.DedupWindow(); got != 30*time.Second {
		t.Fatalf("want 30s dedup default, got %v", got)
	}
	if got := cfg.ReconcileInterval(); got != time.Minute {
		t.Fatalf("want 1m reconcile default, got %v", got)
	}
	if bands := cfg.CadenceBands(); len(bands) != 4 {
		t.Fatalf("want default bands, got %+v", bands)
	}
}
