package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `server:
  addr: ":8088"
  admin_token: "s3cret"
orders:
  delivery_fee: "3.50"
  catalog_path: "/etc/mergeeats/catalog.json"
merge:
  radius_km: 1.5
  max_group_size: 3
dispatch:
  initial_radius_km: 2
  offer_timeout_seconds: 120
partners:
  location_staleness_seconds: 60
metrics:
  prometheus_enabled: true
  influx_url: "http://localhost:8086"
mqtt:
  enabled: true
  client:
    broker: "tcp://localhost:1883"
    client_id: "mergeeats"
logging:
  backend: "jsonl"
  path: "/tmp/dispatch.log"
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
		{"server.addr", cfg.Server.Addr, ":8088"},
		{"server.admin_token", cfg.Server.AdminToken, "s3cret"},
		{"orders.delivery_fee", cfg.Orders.DeliveryFee, "3.50"},
		{"orders.catalog_path", cfg.Orders.CatalogPath, "/etc/mergeeats/catalog.json"},
		{"merge.radius_km", cfg.Merge.RadiusKM, 1.5},
		{"merge.max_group_size", cfg.Merge.MaxGroupSize, 3},
		{"merge.window_minutes default", cfg.Merge.WindowMinutes, 10},
		{"dispatch.initial_radius_km", cfg.Dispatch.InitialRadiusKM, 2.0},
		{"dispatch.offer_timeout_seconds", cfg.Dispatch.OfferTimeoutSeconds, 120},
		{"dispatch.max_radius_km default", cfg.Dispatch.MaxRadiusKM, 24.0},
		{"dispatch.default_eta_minutes default", cfg.Dispatch.DefaultETAMinutes, 45},
		{"partners.location_staleness_seconds", cfg.Partners.LocationStalenessSeconds, 60},
		{"metrics.prometheus_enabled", cfg.Metrics.PrometheusEnabled, true},
		{"metrics.prometheus_addr default", cfg.Metrics.PrometheusAddr, ":9090"},
		{"metrics.influx_url", cfg.Metrics.InfluxURL, "http://localhost:8086"},
		{"mqtt.enabled", cfg.MQTT.Enabled, true},
		{"mqtt.client.broker", cfg.MQTT.Client.Broker, "tcp://localhost:1883"},
		{"logging.backend", cfg.Logging.Backend, "jsonl"},
		{"logging.path", cfg.Logging.Path, "/tmp/dispatch.log"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
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
		t.Fatalf("expected error for unsupported format")
	}
}

func TestLoadRejectsBadLoggingBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "logging:\n  backend: \"csv\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
