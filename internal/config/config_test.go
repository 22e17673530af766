package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	yaml := `
nats:
  url: "nats://localhost:4222"

directory:
  backend: "redis"
  redis:
    addr: "localhost:6379"
    key_prefix: "entity:"

presence:
  subject_prefix: "presence"
  events_subject: "presence.events.>"
  request_timeout: "3s"

cache:
  enabled: true
  path: "/tmp/plv/test-cache.db"
`
	tmpFile, err := os.CreateTemp("", "plv-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.WriteString(yaml)
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("unexpected NATS URL: %s", cfg.NATS.URL)
	}
	if cfg.Directory.Backend != "redis" {
		t.Errorf("unexpected directory backend: %s", cfg.Directory.Backend)
	}
	if cfg.Directory.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.Directory.Redis.Addr)
	}
	if cfg.Presence.RequestTimeout.Duration() != 3*time.Second {
		t.Errorf("unexpected presence request timeout: %s", cfg.Presence.RequestTimeout.Duration())
	}
	// Defaults survive a partial file.
	if cfg.LiveView.SubscriberBuffer != 16 {
		t.Errorf("unexpected subscriber buffer: %d", cfg.LiveView.SubscriberBuffer)
	}
	if cfg.Presence.EventBuffer != 256 {
		t.Errorf("unexpected event buffer: %d", cfg.Presence.EventBuffer)
	}
}

func TestValidateBadBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory.Backend = "dynamo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown directory backend")
	}
}

func TestValidateRedisNeedsAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory.Backend = "redis"
	cfg.Directory.Redis.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing redis addr")
	}
}

func TestValidateCacheNeedsPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing cache path")
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)
	v, err := d.MarshalYAML()
	if err != nil {
		t.Fatal(err)
	}
	if v != "1m30s" {
		t.Errorf("MarshalYAML = %v, want 1m30s", v)
	}
}
