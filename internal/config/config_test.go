package config

import (
	"os"
	"testing"
	"time"
)

const minimalYAML = `
graylog:
  enabled: true
  url: https://graylog.example.com
  token: test-token
`

func TestParseMinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if !cfg.Graylog.Enabled {
		t.Error("graylog should be enabled")
	}
	if cfg.Prometheus.Enabled || cfg.InfluxDB.Enabled {
		t.Error("unconfigured datasources should stay disabled")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if cfg.Graylog.TimeoutSeconds != 30 {
		t.Errorf("graylog timeout = %d, want 30", cfg.Graylog.TimeoutSeconds)
	}
	if !cfg.Graylog.VerifySSL {
		t.Error("verify_ssl should default to true")
	}
	if cfg.Graylog.MaxTimeRangeHours != 24 {
		t.Errorf("graylog max range = %d, want 24", cfg.Graylog.MaxTimeRangeHours)
	}
	if cfg.Graylog.MaxResults != 1000 || cfg.Graylog.DefaultResults != 100 {
		t.Errorf("graylog result limits = %d/%d, want 1000/100",
			cfg.Graylog.MaxResults, cfg.Graylog.DefaultResults)
	}
	if cfg.Prometheus.MaxTimeRangeHours != 168 {
		t.Errorf("prometheus max range = %d, want 168", cfg.Prometheus.MaxTimeRangeHours)
	}
	if cfg.InfluxDB.TimeoutSeconds != 60 {
		t.Errorf("influxdb timeout = %d, want 60", cfg.InfluxDB.TimeoutSeconds)
	}
	if len(cfg.InfluxDB.AllowedBuckets) != 3 {
		t.Errorf("allowed buckets = %v, want 3 defaults", cfg.InfluxDB.AllowedBuckets)
	}
	if !cfg.Cache.Enabled || cfg.Cache.DefaultTTLSeconds != 60 {
		t.Errorf("cache defaults = %v/%d, want enabled/60",
			cfg.Cache.Enabled, cfg.Cache.DefaultTTLSeconds)
	}
	if cfg.Client.MaxRetries != 3 || cfg.Client.RetryWaitMin != time.Second {
		t.Errorf("client defaults = %d/%v, want 3/1s",
			cfg.Client.MaxRetries, cfg.Client.RetryWaitMin)
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_GRAYLOG_TOKEN", "sekrit-value")

	cfg, err := Parse([]byte(`
graylog:
  enabled: true
  url: https://graylog.example.com
  token: ${TEST_GRAYLOG_TOKEN}
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if cfg.Graylog.Token != "sekrit-value" {
		t.Errorf("token = %q, want substituted value", cfg.Graylog.Token)
	}
}

func TestEnvSubstitutionMissingVarFails(t *testing.T) {
	os.Unsetenv("DEFINITELY_NOT_SET_ANYWHERE")

	_, err := Parse([]byte(`
graylog:
  enabled: true
  url: https://graylog.example.com
  token: ${DEFINITELY_NOT_SET_ANYWHERE}
`))
	if err == nil {
		t.Fatal("expected error for unset environment variable")
	}
}

func TestTTLOverridesPreserveOrder(t *testing.T) {
	cfg, err := Parse([]byte(`
graylog:
  enabled: true
  url: https://graylog.example.com
  token: t
cache:
  enabled: true
  default_ttl_seconds: 60
  ttl_overrides:
    zebra_tool: 120
    alpha_tool: 30
    middle_tool: 90
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	got := cfg.Cache.TTLOverrides
	want := []string{"zebra_tool", "alpha_tool", "middle_tool"}
	if len(got) != len(want) {
		t.Fatalf("overrides = %v, want %d entries", got, len(want))
	}
	for i, name := range want {
		if got[i].Tool != name {
			t.Errorf("overrides[%d] = %q, want %q (order must match the file)", i, got[i].Tool, name)
		}
	}
	if got[0].TTLSeconds != 120 {
		t.Errorf("zebra_tool ttl = %d, want 120", got[0].TTLSeconds)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no datasource enabled",
			yaml: `
cache:
  enabled: true
`,
		},
		{
			name: "graylog missing token",
			yaml: `
graylog:
  enabled: true
  url: https://graylog.example.com
`,
		},
		{
			name: "graylog max_results over cap",
			yaml: `
graylog:
  enabled: true
  url: https://graylog.example.com
  token: t
  max_results: 20000
`,
		},
		{
			name: "graylog defaults exceed maxima",
			yaml: `
graylog:
  enabled: true
  url: https://graylog.example.com
  token: t
  max_results: 100
  default_results: 500
`,
		},
		{
			name: "graylog default range exceeds max",
			yaml: `
graylog:
  enabled: true
  url: https://graylog.example.com
  token: t
  max_time_range_hours: 6
  default_time_range_hours: 12
`,
		},
		{
			name: "influxdb missing org",
			yaml: `
influxdb:
  enabled: true
  url: https://influx.example.com
  token: t
`,
		},
		{
			name: "influxdb empty bucket list",
			yaml: `
influxdb:
  enabled: true
  url: https://influx.example.com
  token: t
  org: myorg
  allowed_buckets: []
`,
		},
		{
			name: "prometheus missing url",
			yaml: `
prometheus:
  enabled: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	os.Unsetenv("OVERWATCH_CONFIG")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("ENVIRONMENT")
	os.Unsetenv("HEALTH_PORT")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() failed: %v", err)
	}
	if e.ConfigFile != "config.yaml" {
		t.Errorf("config file = %q, want config.yaml", e.ConfigFile)
	}
	if e.LogLevel != "info" || e.Environment != "development" {
		t.Errorf("env defaults = %q/%q, want info/development", e.LogLevel, e.Environment)
	}
	if e.HealthPort != 8080 {
		t.Errorf("health port = %d, want 8080", e.HealthPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OVERWATCH_CONFIG", "/etc/overwatch/config.yaml")
	t.Setenv("HEALTH_PORT", "9090")

	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("LoadEnv() failed: %v", err)
	}
	if e.ConfigFile != "/etc/overwatch/config.yaml" {
		t.Errorf("config file = %q", e.ConfigFile)
	}
	if e.HealthPort != 9090 {
		t.Errorf("health port = %d, want 9090", e.HealthPort)
	}
}

func TestLoadRejectsPathTraversal(t *testing.T) {
	if _, err := Load("../../etc/passwd"); err == nil {
		t.Error("expected error for path traversal")
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "***"},
		{"exactly8", "***"},
		{"secret-token-12345", "secr...2345"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.input); got != tt.expected {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestRedactMasksCredentials(t *testing.T) {
	cfg, err := Parse([]byte(`
graylog:
  enabled: true
  url: https://graylog.example.com
  token: super-secret-token
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	redacted := cfg.Redact()
	if redacted.Graylog.Token == cfg.Graylog.Token {
		t.Error("token should be masked")
	}
	if cfg.Graylog.Token != "super-secret-token" {
		t.Error("original config must not be mutated")
	}
}
