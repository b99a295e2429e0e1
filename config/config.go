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

	"github.com/mergeeats/core/core/dispatch"
	"github.com/mergeeats/core/core/merge"
	"github.com/mergeeats/core/core/partner"
	"github.com/mergeeats/core/infra/mqtt"
)

type Config struct {
	Server   ServerConfig    `json:"server"`
	Orders   OrdersConfig    `json:"orders"`
	Merge    merge.Config    `json:"merge"`
	Dispatch dispatch.Config `json:"dispatch"`
	Partners partner.Config  `json:"partners"`
	Metrics  MetricsConfig   `json:"metrics"`
	MQTT     MQTTConfig      `json:"mqtt"`
	Logging  LoggingConfig   `json:"logging"`
	Sentry   SentryConfig    `json:"sentry"`
}

// ServerConfig holds the public HTTP listener settings.
type ServerConfig struct {
	Addr string `json:"addr"`
	// AdminToken guards the dispatch log query endpoint. Leave empty to
	// disable the endpoint entirely.
	AdminToken string `json:"admin_token"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// OrdersConfig holds order pricing settings.
type OrdersConfig struct {
	// DeliveryFee is a decimal string added to every order total.
	DeliveryFee string `json:"delivery_fee"`
	// CatalogPath points at a JSON file of restaurants and menus loaded
	// at startup. Optional; the catalog starts empty without it.
	CatalogPath string `json:"catalog_path"`
}

func (c *OrdersConfig) SetDefaults() {
	if c.DeliveryFee == "" {
		c.DeliveryFee = "2.99"
	}
}

// MetricsConfig selects the enabled metrics sinks.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
	// KPIDBPath enables the SQLite KPI store when set.
	KPIDBPath string `json:"kpi_db_path"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9090"
	}
}

// MQTTConfig wraps the broker connection for partner telemetry.
type MQTTConfig struct {
	Enabled bool        `json:"enabled"`
	Client  mqtt.Config `json:"client"`
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
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Server.SetDefaults()
	cfg.Orders.SetDefaults()
	cfg.Merge.SetDefaults()
	cfg.Dispatch.SetDefaults()
	cfg.Partners.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
