package config

import (
	"testing"
	"time"
)

func TestGetenvHelpers(t *testing.T) {
	t.Setenv("SYNC_TEST_STR", "  value  ")
	if got := Getenv("SYNC_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("Getenv = %q", got)
	}
	if got := Getenv("SYNC_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("Getenv fallback = %q", got)
	}

	t.Setenv("SYNC_TEST_INT", "7")
	if got := GetenvInt("SYNC_TEST_INT", 1); got != 7 {
		t.Fatalf("GetenvInt = %d", got)
	}
	t.Setenv("SYNC_TEST_INT", "junk")
	if got := GetenvInt("SYNC_TEST_INT", 1); got != 1 {
		t.Fatalf("GetenvInt junk = %d", got)
	}

	t.Setenv("SYNC_TEST_DUR", "90s")
	if got := GetenvDuration("SYNC_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("GetenvDuration = %v", got)
	}

	t.Setenv("SYNC_TEST_BOOL", "yes")
	if !GetenvBool("SYNC_TEST_BOOL", false) {
		t.Fatalf("GetenvBool yes = false")
	}
	t.Setenv("SYNC_TEST_BOOL", "maybe")
	if GetenvBool("SYNC_TEST_BOOL", false) {
		t.Fatalf("GetenvBool garbage should fall back")
	}
}

func TestRemoteFromEnv(t *testing.T) {
	t.Setenv("SYNC_API_BASE_URL", "")
	if _, err := RemoteFromEnv(); err == nil {
		t.Fatalf("expected error without base URL")
	}

	t.Setenv("SYNC_API_BASE_URL", "https://emr.example.com/api")
	t.Setenv("SYNC_API_KEY", "sk-test")
	t.Setenv("SYNC_HTTP_TIMEOUT", "30s")
	cfg, err := RemoteFromEnv()
	if err != nil {
		t.Fatalf("RemoteFromEnv failed: %v", err)
	}
	if cfg.BaseURL != "https://emr.example.com/api" || cfg.APIKey != "sk-test" || cfg.Timeout != 30*time.Second {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}
