package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.DBPath != DefaultDBPath {
		t.Errorf("db path = %s, want %s", cfg.DBPath, DefaultDBPath)
	}
	if cfg.SettleInterval != DefaultSettleInterval {
		t.Errorf("settle interval = %s, want %s", cfg.SettleInterval, DefaultSettleInterval)
	}
	if cfg.JWTSecret == "" {
		t.Error("no development JWT secret applied")
	}
	if cfg.InternalSecret != cfg.JWTSecret {
		t.Error("internal secret should fall back to the JWT secret")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DB_PATH", "/tmp/market.db")
	t.Setenv("JWT_SECRET", "super-secret")
	t.Setenv("SETTLE_INTERVAL", "2m")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != 9999 || cfg.DBPath != "/tmp/market.db" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.JWTSecret != "super-secret" {
		t.Errorf("jwt secret = %s", cfg.JWTSecret)
	}
	if cfg.SettleInterval != 2*time.Minute {
		t.Errorf("settle interval = %s, want 2m", cfg.SettleInterval)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if _, err := FromEnv(); err == nil {
		t.Error("bad PORT accepted")
	}

	t.Setenv("PORT", "8080")
	t.Setenv("SETTLE_INTERVAL", "fast")
	if _, err := FromEnv(); err == nil {
		t.Error("bad SETTLE_INTERVAL accepted")
	}

	t.Setenv("SETTLE_INTERVAL", "100ms")
	if _, err := FromEnv(); err == nil || !strings.Contains(err.Error(), "settle interval") {
		t.Errorf("sub-second settle interval accepted: %v", err)
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	if _, err := FromEnv(); err == nil {
		t.Error("production without JWT_SECRET accepted")
	}

	t.Setenv("JWT_SECRET", "prod-secret")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.Production() {
		t.Error("Production() = false with ENV=production")
	}
}
