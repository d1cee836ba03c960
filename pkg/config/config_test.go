package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
environment: test
logging:
  level: debug
  format: console
  output: stdout
tickers:
  symbols: [AAPL, MSFT]
providers:
  order: [polygon, yahoo]
  max_retries: 3
  request_timeout: 30s
  rate_limit_delay: 100ms
  polygon:
    api_key: pk-test
detection:
  volume_threshold: 3.0
  oi_threshold: 2.5
  tiers:
    high: 0.8
    medium: 0.65
    low: 0.5
clickhouse:
  host: localhost
  port: 9000
  database: chainwatch
kafka:
  enabled: true
  brokers: [localhost:9092]
  anomaly_topic: anomalies
  run_topic: runs
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	c, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Environment != "test" {
		t.Errorf("environment = %q", c.Environment)
	}
	if len(c.Providers.Order) != 2 || c.Providers.Order[0] != "polygon" {
		t.Errorf("provider order = %v", c.Providers.Order)
	}
	if c.Providers.RateLimitDelay != 100*time.Millisecond {
		t.Errorf("rate_limit_delay = %v", c.Providers.RateLimitDelay)
	}
	if c.Detection.VolumeThreshold != 3.0 || c.Detection.OIThreshold != 2.5 {
		t.Errorf("detection thresholds = %+v", c.Detection)
	}
	if c.Detection.Tiers.High != 0.8 {
		t.Errorf("tiers = %+v", c.Detection.Tiers)
	}
	if c.Kafka.AnomalyTopic != "anomalies" {
		t.Errorf("anomaly topic = %q", c.Kafka.AnomalyTopic)
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing environment", `
tickers: {symbols: [AAPL]}
providers: {order: [yahoo]}
clickhouse: {host: localhost}
`},
		{"no tickers", `
environment: test
providers: {order: [yahoo]}
clickhouse: {host: localhost}
`},
		{"no providers", `
environment: test
tickers: {symbols: [AAPL]}
clickhouse: {host: localhost}
`},
		{"unknown provider", `
environment: test
tickers: {symbols: [AAPL]}
providers: {order: [bloomberg]}
clickhouse: {host: localhost}
`},
		{"polygon without key", `
environment: test
tickers: {symbols: [AAPL]}
providers: {order: [polygon]}
clickhouse: {host: localhost}
`},
		{"kafka enabled without brokers", `
environment: test
tickers: {symbols: [AAPL]}
providers: {order: [yahoo]}
clickhouse: {host: localhost}
kafka: {enabled: true}
`},
		{"inverted tiers", `
environment: test
tickers: {symbols: [AAPL]}
providers: {order: [yahoo]}
clickhouse: {host: localhost}
detection:
  tiers: {high: 0.5, medium: 0.65, low: 0.8}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "pk-env")
	t.Setenv("SYMBOLS", "TSLA,NVDA")
	t.Setenv("CLICKHOUSE_HOST", "ch.internal")

	c, err := LoadWithEnv(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Providers.Polygon.APIKey != "pk-env" {
		t.Errorf("api key = %q", c.Providers.Polygon.APIKey)
	}
	if len(c.Tickers.Symbols) != 2 || c.Tickers.Symbols[0] != "TSLA" {
		t.Errorf("symbols = %v", c.Tickers.Symbols)
	}
	if c.ClickHouse.Host != "ch.internal" {
		t.Errorf("clickhouse host = %q", c.ClickHouse.Host)
	}
}
