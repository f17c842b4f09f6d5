package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{HTTP: HTTPConfig{Port: 8080}}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Tokens = map[string]TokenConfig{
		"t1": {ID: "alice", Groups: []string{"staff"}},
		"t2": {Root: true},
	}
	cfg.Schema.Properties = map[string]string{"title": "text", "size": "number"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownAuthDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Driver = "ldap"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	expected := `auth.driver must be "static" or "redis", got "ldap"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_RedisDriverNeedsAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Driver = "redis"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
	cfg.Redis.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TokenWithoutID(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Tokens = map[string]TokenConfig{"t1": {Groups: []string{"staff"}}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for token without id")
	}
}

func TestValidate_SchemaType(t *testing.T) {
	cfg := validConfig()
	cfg.Schema.Properties = map[string]string{"loc": "geo"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown schema type")
	}
}

func TestValidate_PageSizes(t *testing.T) {
	cfg := validConfig()
	cfg.Search.DefaultPageSize = 500
	cfg.Search.MaxPageSize = 100

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for default page size above max")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Search: SearchConfig{AnonymousMaxStalenessSec: -5}}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Index.Path != "data/index" {
		t.Errorf("expected Index.Path='data/index', got %q", cfg.Index.Path)
	}
	if cfg.Search.MaxHits != 60000 {
		t.Errorf("expected MaxHits=60000, got %d", cfg.Search.MaxHits)
	}
	if cfg.SearchWarnThreshold() != 15*time.Second {
		t.Errorf("expected warn threshold 15s, got %v", cfg.SearchWarnThreshold())
	}
	if cfg.AnonymousMaxStaleness() != 0 {
		t.Errorf("expected anonymous staleness 0, got %v", cfg.AnonymousMaxStaleness())
	}
	if cfg.Auth.Driver != "static" {
		t.Errorf("expected Auth.Driver='static', got %q", cfg.Auth.Driver)
	}
	if cfg.Auth.CacheSize != 1024 || cfg.Auth.CacheTTLSec != 60 {
		t.Errorf("unexpected auth cache defaults: %+v", cfg.Auth)
	}
	if cfg.Redis.KeyPrefix != "vxsearch:" {
		t.Errorf("expected KeyPrefix='vxsearch:', got %q", cfg.Redis.KeyPrefix)
	}
	if cfg.Redis.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Redis.ReadinessTimeout)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index:  IndexConfig{Path: "/var/lib/vxsearch"},
		Search: SearchConfig{MaxHits: 500, WarnThresholdMs: 250, AnonymousMaxStalenessSec: 30},
		Auth:   AuthConfig{Driver: "redis", CacheSize: 10, CacheTTLSec: 5},
		Redis:  RedisConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Index.Path != "/var/lib/vxsearch" {
		t.Errorf("expected custom index path, got %q", cfg.Index.Path)
	}
	if cfg.Search.MaxHits != 500 {
		t.Errorf("expected MaxHits=500, got %d", cfg.Search.MaxHits)
	}
	if cfg.SearchWarnThreshold() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.SearchWarnThreshold())
	}
	if cfg.AnonymousMaxStaleness() != 30*time.Second {
		t.Errorf("expected 30s, got %v", cfg.AnonymousMaxStaleness())
	}
	if cfg.Auth.Driver != "redis" || cfg.Auth.CacheSize != 10 {
		t.Errorf("auth overridden: %+v", cfg.Auth)
	}
	if cfg.Redis.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Redis.KeyPrefix)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("VX_TEST_PORT", "9090")
	got := string(expandEnvVars([]byte("port: ${VX_TEST_PORT}\npath: ${VX_TEST_UNSET:-data/idx}\n")))
	want := "port: 9090\npath: data/idx\n"
	if got != want {
		t.Errorf("expandEnvVars() = %q, want %q", got, want)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	yaml := `
http:
  port: ${VX_TEST_LOAD_PORT:-8181}
auth:
  tokens:
    secret:
      id: alice
      groups: [staff]
schema:
  properties:
    title: text
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unittest.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8181 {
		t.Errorf("port = %d, want 8181", cfg.HTTP.Port)
	}
	if tc := cfg.Auth.Tokens["secret"]; tc.ID != "alice" || len(tc.Groups) != 1 {
		t.Errorf("token = %+v", tc)
	}
	if cfg.Schema.Properties["title"] != "text" {
		t.Errorf("schema = %v", cfg.Schema.Properties)
	}
	if cfg.Search.MaxHits != 60000 {
		t.Errorf("defaults not applied: %+v", cfg.Search)
	}
}
