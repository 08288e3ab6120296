package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "fleet"
  ack_topic: "worker/+/ack"
  use_tls: false
websocket:
  enabled: true
  addr: ":8080"
dispatch:
  prefer_zone: true
  ack_timeout_ms: 3000
location:
  min_write_distance_m: 10
  write_interval_ms: 5000
redis_geo:
  enabled: true
  addr: "localhost:6379"
metrics:
  prometheus_enabled: true
  prometheus_addr: ":2112"
audit_log:
  backend: "jsonl_rotating"
  path: "/var/log/fleet/assignments.log"
  max_size_mb: 10
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "fleet"},
		{"ack_topic", cfg.MQTT.AckTopic, "worker/+/ack"},
		{"ws.enabled", cfg.WebSocket.Enabled, true},
		{"ws.addr", cfg.WebSocket.Addr, ":8080"},
		{"prefer_zone", cfg.Dispatch.PreferZone, true},
		{"ack_timeout_ms", cfg.Dispatch.AckTimeoutMS, 3000},
		{"candidate_limit default", cfg.Dispatch.CandidateLimit, 25},
		{"min_write_distance", cfg.Location.MinWriteDistanceM, 10.0},
		{"ui_interval default", cfg.Location.UIIntervalMS, 500},
		{"interp_duration default", cfg.Location.InterpDurationMS, 2000},
		{"suppress_window default", cfg.Availability.SuppressWindowMS, 1500},
		{"watchdog default", cfg.Availability.WatchdogMS, 10000},
		{"dismiss default", cfg.Claims.DismissAfterMS, 2000},
		{"redis.enabled", cfg.RedisGeo.Enabled, true},
		{"redis.addr", cfg.RedisGeo.Addr, "localhost:6379"},
		{"prom.enabled", cfg.Metrics.PrometheusEnabled, true},
		{"prom.addr", cfg.Metrics.PrometheusAddr, ":2112"},
		{"audit.backend", cfg.AuditLog.Backend, "jsonl_rotating"},
		{"audit.path", cfg.AuditLog.Path, "/var/log/fleet/assignments.log"},
		{"audit.max_size", cfg.AuditLog.MaxSizeMB, 10},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadRejectsBadAuditBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "audit_log:\n  backend: \"sqlite\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown audit backend")
	}
}

func TestLoadRejectsIncoherentThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "location:\n  interp_min_distance_m: 300\n  interp_max_distance_m: 200\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for incoherent interp thresholds")
	}
}
