package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
environment: test
server:
  port: 9090
sources:
  crypto:
    enabled: true
    symbols: [BTCUSDT, ETHUSDT]
  equity:
    enabled: true
    symbols: [AAPL]
  carbon:
    enabled: true
    base_url: https://carbon.example.com
forecast:
  model_timeout: 10s
kafka:
  enabled: true
  brokers: [localhost:9092]
  topic: market.ticks
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("expected explicit port 9090, got %d", c.Server.Port)
	}
	if c.Sources.Reconnect.Delay != 3*time.Second {
		t.Fatalf("expected default reconnect delay, got %v", c.Sources.Reconnect.Delay)
	}
	if c.Sources.Reconnect.MaxAttempts != 5 {
		t.Fatalf("expected default attempt cap 5, got %d", c.Sources.Reconnect.MaxAttempts)
	}
	if c.Forecast.ModelTimeout != 10*time.Second {
		t.Fatalf("expected explicit model timeout, got %v", c.Forecast.ModelTimeout)
	}
	if c.Forecast.ResultCacheTTL != 5*time.Minute {
		t.Fatalf("expected default result cache TTL, got %v", c.Forecast.ResultCacheTTL)
	}
	if c.Sources.Carbon.PollInterval != 15*time.Minute {
		t.Fatalf("expected default carbon poll interval, got %v", c.Sources.Carbon.PollInterval)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing environment", `
server:
  port: 8080
`},
		{"crypto enabled without symbols", `
environment: test
sources:
  crypto:
    enabled: true
`},
		{"kafka enabled without brokers", `
environment: test
kafka:
  enabled: true
  topic: t
`},
		{"carbon enabled without base url", `
environment: test
sources:
  carbon:
    enabled: true
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("CRYPTO_SYMBOLS", "SOLUSDT, ADAUSDT")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "override.ticks")

	c, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Sources.Crypto.Symbols) != 2 || c.Sources.Crypto.Symbols[0] != "SOLUSDT" {
		t.Fatalf("expected symbol override, got %v", c.Sources.Crypto.Symbols)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("expected broker override, got %v", c.Kafka.Brokers)
	}
	if c.Kafka.Topic != "override.ticks" {
		t.Fatalf("expected topic override, got %s", c.Kafka.Topic)
	}
}
