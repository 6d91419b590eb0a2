package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() error: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Engine.Alpha = 0
	cfg.Engine.FeeRateBps = 10_000
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() returned nil for broken config")
	}
	for _, want := range []string{"unknown mode", "alpha", "fee_rate_bps", "redis", "server"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error missing %q:\n%v", want, err)
		}
	}
}

func TestValidate_ArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Errorf("Validate() error = %v, want bucket complaint", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("OPINED_ENGINE_FEE_RATE_BPS", "500")
	t.Setenv("OPINED_DATABASE_DSN", "postgres://env/opined")
	t.Setenv("OPINED_REDIS_PRICE_TTL", "90s")
	t.Setenv("OPINED_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("OPINED_MODE", "server")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Engine.FeeRateBps != 500 {
		t.Errorf("FeeRateBps = %d, want 500", cfg.Engine.FeeRateBps)
	}
	if cfg.Database.DSN != "postgres://env/opined" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Redis.PriceTTL.Duration != 90*time.Second {
		t.Errorf("PriceTTL = %v, want 90s", cfg.Redis.PriceTTL.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Mode != "server" {
		t.Errorf("Mode = %q, want server", cfg.Mode)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.AdminAPIKey = "hunter2"

	red := RedactedConfig(&cfg)
	if red.Database.Password != "***" || red.Redis.Password != "***" || red.S3.SecretKey != "***" || red.Server.AdminAPIKey != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Database.Password != "hunter2" {
		t.Error("RedactedConfig mutated the original")
	}
}
