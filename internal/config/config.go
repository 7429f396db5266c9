// Package config provides configuration management for the Overwatch MCP server.
//
// Datasource configuration lives in a YAML file with ${VAR} environment
// substitution so tokens never sit in the file itself. Process-level
// settings (config path, log level, health port) come from plain
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Env holds process-level settings read from the environment.
type Env struct {
	ConfigFile     string `env:"OVERWATCH_CONFIG" envDefault:"config.yaml"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	HealthPort     int    `env:"HEALTH_PORT" envDefault:"8080"`
	TracingEnabled bool   `env:"TRACING_ENABLED" envDefault:"false"`
}

// LoadEnv parses process-level settings from the environment.
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return &e, nil
}

// GraylogConfig configures the Graylog datasource.
type GraylogConfig struct {
	Enabled               bool   `yaml:"enabled"`
	URL                   string `yaml:"url"`
	Token                 string `yaml:"token"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	VerifySSL             bool   `yaml:"verify_ssl"`
	MaxTimeRangeHours     int    `yaml:"max_time_range_hours"`
	DefaultTimeRangeHours int    `yaml:"default_time_range_hours"`
	MaxResults            int    `yaml:"max_results"`
	DefaultResults        int    `yaml:"default_results"`
	DefaultQueryFilter    string `yaml:"default_query_filter"`
}

// Timeout returns the request timeout as a duration.
func (g *GraylogConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// PrometheusConfig configures the Prometheus datasource.
type PrometheusConfig struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	VerifySSL         bool   `yaml:"verify_ssl"`
	MaxTimeRangeHours int    `yaml:"max_time_range_hours"`
	MaxMetricResults  int    `yaml:"max_metric_results"`
}

// Timeout returns the request timeout as a duration.
func (p *PrometheusConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// InfluxDBConfig configures the InfluxDB datasource.
type InfluxDBConfig struct {
	Enabled           bool     `yaml:"enabled"`
	URL               string   `yaml:"url"`
	Token             string   `yaml:"token"`
	Org               string   `yaml:"org"`
	TimeoutSeconds    int      `yaml:"timeout_seconds"`
	VerifySSL         bool     `yaml:"verify_ssl"`
	AllowedBuckets    []string `yaml:"allowed_buckets"`
	MaxTimeRangeHours int      `yaml:"max_time_range_hours"`
}

// Timeout returns the request timeout as a duration.
func (i *InfluxDBConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// TTLOverride maps a tool name to a cache TTL.
type TTLOverride struct {
	Tool       string
	TTLSeconds int
}

// TTLOverrides preserves the YAML mapping order, which matters because
// the first matching override wins.
type TTLOverrides []TTLOverride

// UnmarshalYAML decodes a mapping node entry by entry so that the
// configured order survives the round trip through a Go value.
func (t *TTLOverrides) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("ttl_overrides must be a mapping, got %s", value.Tag)
	}
	out := make(TTLOverrides, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var ttl int
		if err := value.Content[i+1].Decode(&ttl); err != nil {
			return fmt.Errorf("invalid ttl for %q: %w", value.Content[i].Value, err)
		}
		out = append(out, TTLOverride{Tool: value.Content[i].Value, TTLSeconds: ttl})
	}
	*t = out
	return nil
}

// CacheConfig configures result caching.
type CacheConfig struct {
	Enabled           bool         `yaml:"enabled"`
	DefaultTTLSeconds int          `yaml:"default_ttl_seconds"`
	TTLOverrides      TTLOverrides `yaml:"ttl_overrides"`
}

// ClientConfig tunes the shared HTTP client behavior.
type ClientConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	RetryWaitMin    time.Duration `yaml:"retry_wait_min"`
	RetryWaitMax    time.Duration `yaml:"retry_wait_max"`
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	EnableRateLimit bool          `yaml:"enable_rate_limit"`
}

// Config holds all configuration for the MCP server.
type Config struct {
	Graylog    GraylogConfig    `yaml:"graylog"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Cache      CacheConfig      `yaml:"cache"`
	Client     ClientConfig     `yaml:"client"`
}

// Defaults returns a config populated with default values. YAML content
// is decoded over the top, so omitted keys keep these values.
func Defaults() *Config {
	return &Config{
		Graylog: GraylogConfig{
			TimeoutSeconds:        30,
			VerifySSL:             true,
			MaxTimeRangeHours:     24,
			DefaultTimeRangeHours: 1,
			MaxResults:            1000,
			DefaultResults:        100,
		},
		Prometheus: PrometheusConfig{
			TimeoutSeconds:    30,
			VerifySSL:         true,
			MaxTimeRangeHours: 168,
			MaxMetricResults:  500,
		},
		InfluxDB: InfluxDBConfig{
			TimeoutSeconds:    60,
			VerifySSL:         true,
			AllowedBuckets:    []string{"telegraf", "app_metrics", "system_metrics"},
			MaxTimeRangeHours: 168,
		},
		Cache: CacheConfig{
			Enabled:           true,
			DefaultTTLSeconds: 60,
			TTLOverrides: TTLOverrides{
				{Tool: "prometheus_metrics", TTLSeconds: 300},
				{Tool: "graylog_fields", TTLSeconds: 300},
			},
		},
		Client: ClientConfig{
			MaxRetries:      3,
			RetryWaitMin:    1 * time.Second,
			RetryWaitMax:    30 * time.Second,
			RateLimit:       100,
			RateLimitBurst:  20,
			EnableRateLimit: true,
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces every ${VAR} occurrence with the value of
// VAR. An unset variable is a hard error so a missing token fails at
// startup instead of producing an unauthenticated client.
func substituteEnvVars(data []byte) ([]byte, error) {
	var missing []string
	out := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(envVarPattern.FindSubmatch(match)[1])
		value, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return match
		}
		return []byte(value)
	})
	if len(missing) > 0 {
		return nil, fmt.Errorf("environment variables referenced in config are not set: %s",
			strings.Join(missing, ", "))
	}
	return out, nil
}

// Load reads the YAML config file at path, applies ${VAR} substitution,
// decodes it over the defaults, and validates the result.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes over the defaults and validates.
func Parse(data []byte) (*Config, error) {
	substituted, err := substituteEnvVars(data)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(substituted, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if !c.Graylog.Enabled && !c.Prometheus.Enabled && !c.InfluxDB.Enabled {
		return fmt.Errorf("at least one datasource must be enabled")
	}

	if c.Graylog.Enabled {
		if c.Graylog.URL == "" {
			return fmt.Errorf("graylog.url is required when graylog is enabled")
		}
		if c.Graylog.Token == "" {
			return fmt.Errorf("graylog.token is required when graylog is enabled")
		}
		if c.Graylog.MaxResults > 10000 {
			return fmt.Errorf("graylog.max_results must not exceed 10000, got %d", c.Graylog.MaxResults)
		}
		if c.Graylog.DefaultResults > c.Graylog.MaxResults {
			return fmt.Errorf("graylog.default_results (%d) must not exceed max_results (%d)",
				c.Graylog.DefaultResults, c.Graylog.MaxResults)
		}
		if c.Graylog.DefaultTimeRangeHours > c.Graylog.MaxTimeRangeHours {
			return fmt.Errorf("graylog.default_time_range_hours (%d) must not exceed max_time_range_hours (%d)",
				c.Graylog.DefaultTimeRangeHours, c.Graylog.MaxTimeRangeHours)
		}
	}

	if c.Prometheus.Enabled {
		if c.Prometheus.URL == "" {
			return fmt.Errorf("prometheus.url is required when prometheus is enabled")
		}
		if c.Prometheus.MaxTimeRangeHours <= 0 {
			return fmt.Errorf("prometheus.max_time_range_hours must be positive")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			return fmt.Errorf("influxdb.token is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			return fmt.Errorf("influxdb.org is required when influxdb is enabled")
		}
		if len(c.InfluxDB.AllowedBuckets) == 0 {
			return fmt.Errorf("influxdb.allowed_buckets must not be empty when influxdb is enabled")
		}
	}

	if c.Cache.DefaultTTLSeconds <= 0 {
		return fmt.Errorf("cache.default_ttl_seconds must be positive")
	}
	if c.Client.MaxRetries < 0 {
		return fmt.Errorf("client.max_retries must be non-negative")
	}
	if c.Client.EnableRateLimit && c.Client.RateLimit <= 0 {
		return fmt.Errorf("client.rate_limit must be positive when rate limiting is enabled")
	}

	return nil
}

// Redact returns a copy of the config with credentials masked for
// logging.
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.Graylog.Token = MaskToken(redacted.Graylog.Token)
	redacted.InfluxDB.Token = MaskToken(redacted.InfluxDB.Token)
	return &redacted
}

// MaskToken returns a masked version of a credential for safe logging.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
