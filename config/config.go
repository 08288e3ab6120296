// Package config loads and validates the service configuration from JSON or
// YAML files with environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fleetwise/fleetcore/infra/notify"
	"github.com/fleetwise/fleetcore/infra/redisgeo"
)

type Config struct {
	MQTT         notify.MQTTConfig  `json:"mqtt"`
	WebSocket    WebSocketConfig    `json:"websocket"`
	Dispatch     DispatchConfig     `json:"dispatch"`
	Location     LocationConfig     `json:"location"`
	Availability AvailabilityConfig `json:"availability"`
	Claims       ClaimsConfig       `json:"claims"`
	RedisGeo     RedisGeoConfig     `json:"redis_geo"`
	Geocode      GeocodeConfig      `json:"geocode"`
	Metrics      MetricsConfig      `json:"metrics"`
	AuditLog     AuditLogConfig     `json:"audit_log"`
	API          APIConfig          `json:"api"`
	Sentry       SentryConfig       `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("FLEET_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "fleet_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Dispatch.SetDefaults()
	cfg.Location.SetDefaults()
	cfg.Availability.SetDefaults()
	cfg.Claims.SetDefaults()
	cfg.AuditLog.SetDefaults()
	if err := cfg.AuditLog.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Location.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WebSocketConfig configures the worker session hub endpoint.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// RedisGeoConfig enables the Redis GEO candidate index.
type RedisGeoConfig struct {
	Enabled         bool `json:"enabled"`
	redisgeo.Config `json:",squash"`
}

// GeocodeConfig configures reverse geocoding. Empty APIKey disables it.
type GeocodeConfig struct {
	APIKey string `json:"api_key"`
}

// APIConfig exposes the audit-log query endpoint. An empty Token disables
// authentication; use only on trusted networks.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Token   string `json:"token"`
}

// MetricsConfig selects the observability sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
