package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ALLOWED_ORIGINS", "REDIS_HOST", "REDIS_DB", "PRESENCE_TTL", "STUN_URLS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "9898" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.Redis.Enabled() {
		t.Fatal("redis should be disabled without REDIS_HOST")
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Fatalf("ttl = %v", cfg.Redis.TTL)
	}
	if cfg.ICE.STUNURLs != DefaultSTUNURLs {
		t.Fatalf("stun = %q", cfg.ICE.STUNURLs)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test,,")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PRESENCE_TTL", "90s")

	cfg := Load()
	if cfg.Port != "7000" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.DB != 3 || cfg.Redis.TTL != 90*time.Second {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "three")
	t.Setenv("PRESENCE_TTL", "forever")

	cfg := Load()
	if cfg.Redis.DB != 0 || cfg.Redis.TTL != 24*time.Hour {
		t.Fatalf("expected defaults, got %+v", cfg.Redis)
	}
}
