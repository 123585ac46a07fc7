package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreDriver != DriverFile {
		t.Fatalf("default driver: %s", cfg.StoreDriver)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("default port: %d", cfg.HTTPPort)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("default timeout: %s", cfg.HTTPTimeout)
	}
	if cfg.ChatPath != "/chat" || cfg.ChatEndPath != "/api/chat/end" {
		t.Fatalf("default paths: %s %s", cfg.ChatPath, cfg.ChatEndPath)
	}
	if cfg.GreetingText == "" || cfg.ClearedText == "" {
		t.Fatal("transcript copy defaults missing")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PV_STORE_DRIVER", "memory")
	t.Setenv("PV_HTTP_PORT", "9090")
	t.Setenv("PV_GREETING_TEXT", "Hello.")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreDriver != DriverMemory || cfg.HTTPPort != 9090 || cfg.GreetingText != "Hello." {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("PV_STORE_DRIVER", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
