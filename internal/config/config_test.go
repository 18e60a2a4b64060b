package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	os.Clearenv()
	t.Setenv("DATABASE_URL", "postgres://localhost/sso?sslmode=disable")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "sso-auth" || cfg.JWTAudience != "sso-central" {
		t.Errorf("issuer/audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.CentralTokenTTL != time.Hour {
		t.Errorf("CentralTokenTTL = %v, want 1h", cfg.CentralTokenTTL)
	}
	if cfg.SystemTokenTTL != 15*time.Minute {
		t.Errorf("SystemTokenTTL = %v, want 15m", cfg.SystemTokenTTL)
	}
	if cfg.RefreshTokenTTL != 720*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 720h", cfg.RefreshTokenTTL)
	}
	if cfg.ExchangeCodeTTL != 5*time.Minute {
		t.Errorf("ExchangeCodeTTL = %v, want 5m", cfg.ExchangeCodeTTL)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.LogoutRevokesRefresh || cfg.RefreshReuseRevokesAll || cfg.OTelInsecure {
		t.Error("LogoutRevokesRefresh, RefreshReuseRevokesAll and OTelInsecure should default to false")
	}
	if cfg.SystemCacheSize != 256 || cfg.SystemCacheTTL != time.Minute {
		t.Errorf("system cache = %d/%v, want 256/1m", cfg.SystemCacheSize, cfg.SystemCacheTTL)
	}
	if cfg.OTelServiceName != "sso-identity-provider" || cfg.OTelSampleRatio != 1 {
		t.Errorf("otel service/ratio = %q/%v", cfg.OTelServiceName, cfg.OTelSampleRatio)
	}
	if cfg.HTTPReadTimeout != 10*time.Second || cfg.HTTPWriteTimeout != 10*time.Second {
		t.Errorf("timeouts = %v/%v, want 10s/10s", cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SYSTEM_TOKEN_TTL", "5m")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("LOGOUT_REVOKES_REFRESH", "true")
	t.Setenv("APP_ENV", "Development")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.SystemTokenTTL != 5*time.Minute {
		t.Errorf("SystemTokenTTL = %v, want 5m", cfg.SystemTokenTTL)
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if !cfg.LogoutRevokesRefresh {
		t.Error("LogoutRevokesRefresh should be true")
	}
	if !cfg.OTelInsecure {
		t.Error("OTelInsecure should be true for OTEL_EXPORTER_OTLP_INSECURE=1")
	}
	if !cfg.Development() {
		t.Error("Development() should be true for APP_ENV=Development")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}, "DATABASE_URL"},
		{"missing secret", map[string]string{"JWT_SECRET": " "}, "JWT_SECRET"},
		{"bcrypt too high", map[string]string{"BCRYPT_COST": "40"}, "BCRYPT_COST"},
		{"bcrypt too low", map[string]string{"BCRYPT_COST": "3"}, "BCRYPT_COST"},
		{"zero ttl", map[string]string{"EXCHANGE_CODE_TTL": "0s"}, "EXCHANGE_CODE_TTL"},
		{"bad duration", map[string]string{"CENTRAL_TOKEN_TTL": "soon"}, "config:"},
		{"negative cache", map[string]string{"SYSTEM_CACHE_SIZE": "-1"}, "SYSTEM_CACHE_SIZE"},
		{"sample ratio", map[string]string{"OTEL_TRACE_SAMPLE_RATIO": "1.5"}, "OTEL_TRACE_SAMPLE_RATIO"},
		{"insecure typo", map[string]string{"OTEL_EXPORTER_OTLP_INSECURE": "ture"}, "OTEL_EXPORTER_OTLP_INSECURE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load should fail")
			}
			if !strings.HasPrefix(err.Error(), "config:") || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want config: error mentioning %s", err, tc.want)
			}
		})
	}
}

func TestLoadDatabaseURL(t *testing.T) {
	os.Clearenv()
	if _, err := LoadDatabaseURL(); err == nil {
		t.Fatal("LoadDatabaseURL without DATABASE_URL should fail")
	}
	t.Setenv("DATABASE_URL", "postgres://db/sso")
	dsn, err := LoadDatabaseURL()
	if err != nil {
		t.Fatalf("LoadDatabaseURL: %v", err)
	}
	if dsn != "postgres://db/sso" {
		t.Errorf("dsn = %q", dsn)
	}
}
