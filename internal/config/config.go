package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the vxsearch configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Auth    AuthConfig    `yaml:"auth"`
	Redis   RedisConfig   `yaml:"redis"`
	Schema  SchemaConfig  `yaml:"schema"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// IndexConfig holds the on-disk index location.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig holds search engine limits.
type SearchConfig struct {
	MaxHits                  int `yaml:"max_hits"`
	WarnThresholdMs          int `yaml:"warn_threshold_ms"`
	AnonymousMaxStalenessSec int `yaml:"anonymous_max_staleness_sec"` // 0 = always fresh
	DefaultPageSize          int `yaml:"default_page_size"`
	MaxPageSize              int `yaml:"max_page_size"`
}

// AuthConfig holds token resolution settings.
type AuthConfig struct {
	Driver      string                 `yaml:"driver"` // static, redis (default: static)
	Tokens      map[string]TokenConfig `yaml:"tokens"`
	CacheSize   int                    `yaml:"cache_size"`
	CacheTTLSec int                    `yaml:"cache_ttl_sec"`
}

// TokenConfig describes the principal behind a static token.
type TokenConfig struct {
	ID     string   `yaml:"id"`
	Groups []string `yaml:"groups"`
	Root   bool     `yaml:"root"`
}

// RedisConfig holds Redis connection settings for the redis auth driver.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SchemaConfig lists indexed properties as name -> type
// (string, text, number, boolean).
type SchemaConfig struct {
	Properties map[string]string `yaml:"properties"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Index.Path == "" {
		c.Index.Path = "data/index"
	}
	if c.Search.MaxHits <= 0 {
		c.Search.MaxHits = 60000
	}
	if c.Search.WarnThresholdMs <= 0 {
		c.Search.WarnThresholdMs = 15000
	}
	if c.Search.AnonymousMaxStalenessSec < 0 {
		c.Search.AnonymousMaxStalenessSec = 0
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 20
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 1000
	}
	if c.Auth.Driver == "" {
		c.Auth.Driver = "static"
	}
	if c.Auth.CacheSize <= 0 {
		c.Auth.CacheSize = 1024
	}
	if c.Auth.CacheTTLSec <= 0 {
		c.Auth.CacheTTLSec = 60
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "vxsearch:"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size (%d) exceeds search.max_page_size (%d)",
			c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	switch c.Auth.Driver {
	case "static":
		for token, tc := range c.Auth.Tokens {
			if token == "" {
				return fmt.Errorf("auth.tokens: empty token")
			}
			if tc.ID == "" && !tc.Root {
				return fmt.Errorf("auth.tokens: non-root token needs an id")
			}
		}
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("redis.addrs is required for auth.driver=redis")
		}
	default:
		return fmt.Errorf("auth.driver must be \"static\" or \"redis\", got %q", c.Auth.Driver)
	}
	for name, typ := range c.Schema.Properties {
		switch typ {
		case "string", "text", "number", "boolean":
		default:
			return fmt.Errorf("schema.properties.%s: unknown type %q", name, typ)
		}
	}
	return nil
}

// SearchWarnThreshold returns the slow-query threshold as a duration.
func (c *Config) SearchWarnThreshold() time.Duration {
	return time.Duration(c.Search.WarnThresholdMs) * time.Millisecond
}

// AnonymousMaxStaleness returns the staleness tolerated for anonymous queries.
func (c *Config) AnonymousMaxStaleness() time.Duration {
	return time.Duration(c.Search.AnonymousMaxStalenessSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
