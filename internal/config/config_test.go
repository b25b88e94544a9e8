package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("TYCOON_API_ADDR", "")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.LogCapacity != 200 || cfg.ECPMCapacity != 200 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Fatalf("timeout %v", cfg.RequestTimeout)
	}
}

func TestLoadAPIFromEnvPort(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr %q", cfg.Addr)
	}
}

func TestLoadAPIFromEnvRejectsBadCapacity(t *testing.T) {
	t.Setenv("TYCOON_LOG_CAPACITY", "0")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected zero capacity to fail")
	}
}

func TestLoadGameFromEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("TYCOON_HOME", home)
	t.Setenv("TYCOON_VOLATILITY", "WILD")
	t.Setenv("TYCOON_API_BASE_URL", "http://example.test/")
	t.Setenv("TYCOON_MAX_CATCH_UP", "0s")

	cfg, err := LoadGameFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Volatility != "wild" || cfg.APIBaseURL != "http://example.test" {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
	if cfg.MaxCatchUp != 0 || cfg.TickEvery != time.Second || cfg.AutosaveEvery != 30*time.Second {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.SQLitePath() != filepath.Join(home, "tycoon.db") {
		t.Fatalf("sqlite path %s", cfg.SQLitePath())
	}
	if cfg.PlayerID != "default" {
		t.Fatalf("player id should fall back to save key, got %q", cfg.PlayerID)
	}
}

func TestLoadGameFromEnvValidation(t *testing.T) {
	tests := map[string]string{
		"TYCOON_LOCAL_BACKEND": "redis",
		"TYCOON_TICK_EVERY":    "0s",
		"TYCOON_AD_FILL_RATE":  "1.5",
		"TYCOON_MAX_CATCH_UP":  "-1h",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv("TYCOON_HOME", t.TempDir())
			t.Setenv(key, value)
			if _, err := LoadGameFromEnv(); err == nil {
				t.Fatalf("%s=%s should fail", key, value)
			}
		})
	}
}

func TestLoadGameFromEnvUnknownVolatility(t *testing.T) {
	t.Setenv("TYCOON_HOME", t.TempDir())
	t.Setenv("TYCOON_VOLATILITY", "mor")
	cfg, err := LoadGameFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Volatility != "normal" {
		t.Fatalf("volatility %q", cfg.Volatility)
	}
}
