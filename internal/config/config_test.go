package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, env, body string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config."+env+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", env)
}

func TestLoad_FileAndDefaults(t *testing.T) {
	writeConfig(t, "test", `
mode: debug
port: 9090
locks:
  timeout: 2m
identity:
  profiles:
    "5": Eve
`)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 || cfg.Mode != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Locks.Timeout != 2*time.Minute {
		t.Errorf("locks.timeout = %v", cfg.Locks.Timeout)
	}
	if cfg.Locks.SweepInterval != 30*time.Second {
		t.Errorf("locks.sweep_interval default = %v", cfg.Locks.SweepInterval)
	}
	if cfg.Relay.Driver != "gochannel" || cfg.Relay.Topic != "board.changes" {
		t.Errorf("relay defaults = %+v", cfg.Relay)
	}
	if cfg.Identity.Profiles["5"] != "Eve" {
		t.Errorf("profiles = %v", cfg.Identity.Profiles)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	writeConfig(t, "envtest", "mode: debug\n")
	t.Setenv("BOARD_PORT", "7070")
	t.Setenv("BOARD_LOCKS_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Port)
	}
	if cfg.Locks.Timeout != 90*time.Second {
		t.Errorf("locks.timeout = %v, want 90s", cfg.Locks.Timeout)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "absent")
	t.Setenv("BOARD_MODE", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Port != 8080 || cfg.Locks.Timeout != 5*time.Minute {
		t.Errorf("unexpected defaults: port %d, locks.timeout %v", cfg.Port, cfg.Locks.Timeout)
	}
}

func TestLoad_MalformedFileFails(t *testing.T) {
	writeConfig(t, "broken", "mode: [debug\nport: 9090\n")
	t.Setenv("BOARD_MODE", "debug")

	_, err := Load()
	if err == nil {
		t.Fatal("expected a malformed config file to fail")
	}
	if !strings.Contains(err.Error(), "failed to read config") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_ReleaseNeedsSecrets(t *testing.T) {
	writeConfig(t, "prod", "mode: release\n")
	_, err := Load()
	if err == nil {
		t.Fatal("expected release mode without secrets to fail")
	}
	if !strings.Contains(err.Error(), "auth.jwt_secret") {
		t.Errorf("error should name the missing key: %v", err)
	}
}

func validConfig() Config {
	return Config{
		Mode:            "debug",
		PingPeriod:      54 * time.Second,
		PongWait:        time.Minute,
		WriteWait:       10 * time.Second,
		SendBuffer:      64,
		ShutdownTimeout: 5 * time.Second,
		Identity:        IdentityConfig{Timeout: time.Second},
		Locks:           LocksConfig{Timeout: 5 * time.Minute, SweepInterval: 30 * time.Second},
		Limits:          LimitsConfig{EditingRate: 5, EditingBurst: 10},
		Relay:           RelayConfig{Driver: "gochannel"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"zero lock timeout", func(c *Config) { c.Locks.Timeout = 0 }, false},
		{"negative sweep", func(c *Config) { c.Locks.SweepInterval = -time.Second }, false},
		{"ping after pong", func(c *Config) { c.PingPeriod = 2 * time.Minute }, false},
		{"unknown driver", func(c *Config) { c.Relay.Driver = "kafka" }, false},
		{"nats without url", func(c *Config) { c.Relay.Driver = "nats" }, false},
		{"nats with url", func(c *Config) { c.Relay = RelayConfig{Driver: "nats", NatsURL: "nats://x:4222"} }, true},
		{"release with secrets", func(c *Config) {
			c.Mode = "release"
			c.Secret = "cookie"
			c.Auth.JWTSecret = "jwt"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected an error")
			}
			if err != nil && errors.Unwrap(err) == nil {
				t.Errorf("error should wrap its causes: %v", err)
			}
		})
	}
}
