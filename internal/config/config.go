// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTSecret is the HS256 signing secret, inline or as "file:<path>". At least 32 bytes.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim of every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of central session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	CentralTokenTTL time.Duration `mapstructure:"CENTRAL_TOKEN_TTL"`
	SystemTokenTTL  time.Duration `mapstructure:"SYSTEM_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	ExchangeCodeTTL time.Duration `mapstructure:"EXCHANGE_CODE_TTL"`

	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// LogoutRevokesRefresh makes logout also revoke all of the user's refresh tokens.
	LogoutRevokesRefresh bool `mapstructure:"LOGOUT_REVOKES_REFRESH"`
	// RefreshReuseRevokesAll makes a replayed refresh token revoke all of the user's refresh tokens.
	RefreshReuseRevokesAll bool `mapstructure:"REFRESH_REUSE_REVOKES_ALL"`

	// SystemCacheSize and SystemCacheTTL bound the in-process system registry cache.
	SystemCacheSize int           `mapstructure:"SYSTEM_CACHE_SIZE"`
	SystemCacheTTL  time.Duration `mapstructure:"SYSTEM_CACHE_TTL"`

	// OTelEndpoint is the OTLP gRPC collector address; empty disables export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecureRaw string `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	// OTelInsecure is OTEL_EXPORTER_OTLP_INSECURE parsed by validate; empty means false.
	OTelInsecure bool `mapstructure:"-"`
	// OTelSampleRatio is the trace sampling ratio in (0, 1].
	OTelSampleRatio float64 `mapstructure:"OTEL_TRACE_SAMPLE_RATIO"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	HTTPReadTimeout  time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "sso-auth")
	v.SetDefault("JWT_AUDIENCE", "sso-central")
	v.SetDefault("CENTRAL_TOKEN_TTL", "60m")
	v.SetDefault("SYSTEM_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h") // 30d
	v.SetDefault("EXCHANGE_CODE_TTL", "5m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGOUT_REVOKES_REFRESH", false)
	v.SetDefault("REFRESH_REUSE_REVOKES_ALL", false)
	v.SetDefault("SYSTEM_CACHE_SIZE", 256)
	v.SetDefault("SYSTEM_CACHE_TTL", "1m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", "")
	v.SetDefault("OTEL_SERVICE_NAME", "sso-identity-provider")
	v.SetDefault("OTEL_TRACE_SAMPLE_RATIO", 1.0)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("HTTP_READ_TIMEOUT", "10s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabaseURL reads only DATABASE_URL, for the migrate and seed tools.
func LoadDatabaseURL() (string, error) {
	v := newViper()
	v.SetDefault("DATABASE_URL", "")
	dsn := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if dsn == "" {
		return "", errors.New("config: DATABASE_URL must be set; create a .env or set DATABASE_URL")
	}
	return dsn, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	v.AutomaticEnv()
	return v
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if strings.TrimSpace(c.JWTIssuer) == "" || strings.TrimSpace(c.JWTAudience) == "" {
		return errors.New("config: JWT_ISSUER and JWT_AUDIENCE must be set")
	}
	for name, d := range map[string]time.Duration{
		"CENTRAL_TOKEN_TTL": c.CentralTokenTTL,
		"SYSTEM_TOKEN_TTL":  c.SystemTokenTTL,
		"REFRESH_TOKEN_TTL": c.RefreshTokenTTL,
		"EXCHANGE_CODE_TTL": c.ExchangeCodeTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration", name)
		}
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if raw := strings.TrimSpace(c.OTelInsecureRaw); raw != "" {
		insecure, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: OTEL_EXPORTER_OTLP_INSECURE must be a boolean, got %q", raw)
		}
		c.OTelInsecure = insecure
	}
	if c.OTelSampleRatio <= 0 || c.OTelSampleRatio > 1 {
		return errors.New("config: OTEL_TRACE_SAMPLE_RATIO must be in (0, 1]")
	}
	if c.SystemCacheSize < 0 {
		return errors.New("config: SYSTEM_CACHE_SIZE must not be negative")
	}
	return nil
}

// Development reports whether APP_ENV selects development mode.
func (c *Config) Development() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development")
}
