// Package config loads application configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable the auth service reads at startup. Security
// policy values (TTLs, lockout thresholds) are configuration, not code.
type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`

	TokenSecret string `mapstructure:"TOKEN_SECRET"`
	TokenIssuer string `mapstructure:"TOKEN_ISSUER"`

	AccessTTL     string `mapstructure:"ACCESS_TTL"`
	RefreshTTL    string `mapstructure:"REFRESH_TTL"`
	MFAPendingTTL string `mapstructure:"MFA_PENDING_TTL"`
	ResetTokenTTL string `mapstructure:"RESET_TOKEN_TTL"`

	LockoutThreshold int    `mapstructure:"LOCKOUT_THRESHOLD"`
	LockoutDuration  string `mapstructure:"LOCKOUT_DURATION"`

	BcryptCost         int    `mapstructure:"BCRYPT_COST"`
	MaxSessionsPerUser int    `mapstructure:"MAX_SESSIONS_PER_USER"`
	TOTPIssuer         string `mapstructure:"TOTP_ISSUER"`

	RateBurst  int `mapstructure:"RATE_BURST"`
	RatePerSec int `mapstructure:"RATE_PER_SEC"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine (CI, containers)

	v.SetEnvPrefix("HORIZON")
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("TOKEN_ISSUER", "horizon-auth")
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "336h") // 14d
	v.SetDefault("MFA_PENDING_TTL", "5m")
	v.SetDefault("RESET_TOKEN_TTL", "1h")
	v.SetDefault("LOCKOUT_THRESHOLD", 5)
	v.SetDefault("LOCKOUT_DURATION", "30m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAX_SESSIONS_PER_USER", 10)
	v.SetDefault("TOTP_ISSUER", "Horizon Sync")
	v.SetDefault("RATE_BURST", 10)
	v.SetDefault("RATE_PER_SEC", 5)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if strings.TrimSpace(cfg.TokenSecret) == "" {
		return nil, errors.New("config: TOKEN_SECRET must be set")
	}
	if cfg.LockoutThreshold <= 0 {
		return nil, errors.New("config: LOCKOUT_THRESHOLD must be positive")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

func (c *Config) duration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AccessTokenTTL parses ACCESS_TTL, defaulting to 15 minutes.
func (c *Config) AccessTokenTTL() time.Duration { return c.duration(c.AccessTTL, 15*time.Minute) }

// RefreshTokenTTL parses REFRESH_TTL, defaulting to 14 days.
func (c *Config) RefreshTokenTTL() time.Duration {
	return c.duration(c.RefreshTTL, 14*24*time.Hour)
}

// MFAPendingTokenTTL parses MFA_PENDING_TTL, defaulting to 5 minutes.
func (c *Config) MFAPendingTokenTTL() time.Duration {
	return c.duration(c.MFAPendingTTL, 5*time.Minute)
}

// PasswordResetTTL parses RESET_TOKEN_TTL, defaulting to 1 hour.
func (c *Config) PasswordResetTTL() time.Duration { return c.duration(c.ResetTokenTTL, time.Hour) }

// AccountLockoutDuration parses LOCKOUT_DURATION, defaulting to 30 minutes.
func (c *Config) AccountLockoutDuration() time.Duration {
	return c.duration(c.LockoutDuration, 30*time.Minute)
}
