package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	FallbackAccessSecret  = "fallback-access-secret"
	FallbackRefreshSecret = "fallback-refresh-secret"

	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	AppEnv   string `mapstructure:"app_env"`
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	AccessSecret            string `mapstructure:"jwt_access_secret"`
	RefreshSecret           string `mapstructure:"jwt_refresh_secret"`
	AccessExpirySeconds     int    `mapstructure:"jwt_access_expiry"`
	RefreshExpirySeconds    int    `mapstructure:"jwt_refresh_expiry"`
	RefreshThresholdMinutes int    `mapstructure:"token_refresh_threshold_minutes"`

	StateBackend  string `mapstructure:"state_backend"`
	DatabaseURL   string `mapstructure:"database_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	SentryDSN string `mapstructure:"sentry_dsn"`

	LoginRateLimitMax           int `mapstructure:"login_rate_limit_max"`
	LoginRateLimitWindowSeconds int `mapstructure:"login_rate_limit_window_seconds"`

	CronSecret         string `mapstructure:"cron_secret"`
	StateRetentionDays int    `mapstructure:"state_retention_days"`
	CleanupBatchSize   int    `mapstructure:"cleanup_batch_size"`

	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`

	CookieSecure           bool `mapstructure:"cookie_secure"`
	RunMigrationsOnStartup bool `mapstructure:"run_migrations_on_startup"`

	// Warnings collects insecure-but-tolerated settings for the caller to log.
	Warnings []string `mapstructure:"-"`
}

var defaults = map[string]any{
	"app_env":                         EnvDevelopment,
	"port":                            "8080",
	"log_level":                       "info",
	"jwt_access_secret":               "",
	"jwt_refresh_secret":              "",
	"jwt_access_expiry":               900,
	"jwt_refresh_expiry":              604800,
	"token_refresh_threshold_minutes": 5,
	"state_backend":                   BackendMemory,
	"database_url":                    "",
	"redis_addr":                      "localhost:6379",
	"redis_password":                  "",
	"redis_db":                        0,
	"sentry_dsn":                      "",
	"login_rate_limit_max":            10,
	"login_rate_limit_window_seconds": 60,
	"cron_secret":                     "",
	"state_retention_days":            30,
	"cleanup_batch_size":              500,
	"admin_email":                     "",
	"admin_password":                  "",
	"cookie_secure":                   false,
	"run_migrations_on_startup":       false,
}

type Options struct {
	LoadDotEnv bool
}

// Load reads configuration from the environment (and .env when asked).
func Load(options Options) (*Config, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessExpirySeconds) * time.Second
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpirySeconds) * time.Second
}

func (c *Config) LoginRateLimitWindow() time.Duration {
	return time.Duration(c.LoginRateLimitWindowSeconds) * time.Second
}

func (c *Config) StateRetention() time.Duration {
	return time.Duration(c.StateRetentionDays) * 24 * time.Hour
}

func (c *Config) normalize() error {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	if c.AppEnv == "" {
		c.AppEnv = EnvDevelopment
	}
	c.StateBackend = strings.ToLower(strings.TrimSpace(c.StateBackend))
	c.AccessSecret = strings.TrimSpace(c.AccessSecret)
	c.RefreshSecret = strings.TrimSpace(c.RefreshSecret)

	positiveOrDefault(&c.AccessExpirySeconds, "jwt_access_expiry")
	positiveOrDefault(&c.RefreshExpirySeconds, "jwt_refresh_expiry")
	positiveOrDefault(&c.RefreshThresholdMinutes, "token_refresh_threshold_minutes")
	positiveOrDefault(&c.LoginRateLimitMax, "login_rate_limit_max")
	positiveOrDefault(&c.LoginRateLimitWindowSeconds, "login_rate_limit_window_seconds")
	positiveOrDefault(&c.StateRetentionDays, "state_retention_days")
	positiveOrDefault(&c.CleanupBatchSize, "cleanup_batch_size")

	if c.RefreshExpirySeconds <= c.AccessExpirySeconds {
		return fmt.Errorf("JWT_REFRESH_EXPIRY (%d) must exceed JWT_ACCESS_EXPIRY (%d)", c.RefreshExpirySeconds, c.AccessExpirySeconds)
	}

	var missing []string
	if c.AccessSecret == "" {
		missing = append(missing, "JWT_ACCESS_SECRET")
	}
	if c.RefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) > 0 {
		if c.IsProduction() {
			return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
		}
		if c.AccessSecret == "" {
			c.AccessSecret = FallbackAccessSecret
		}
		if c.RefreshSecret == "" {
			c.RefreshSecret = FallbackRefreshSecret
		}
		c.Warnings = append(c.Warnings, fmt.Sprintf("using insecure fallback token secrets for %s", strings.Join(missing, ", ")))
	}

	switch c.StateBackend {
	case BackendMemory:
		if c.IsProduction() {
			c.Warnings = append(c.Warnings, "memory state backend does not survive restarts or scale out")
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("REDIS_ADDR is required for the redis state backend")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("DATABASE_URL is required for the postgres state backend")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required together")
	}

	return nil
}

func positiveOrDefault(value *int, key string) {
	if *value <= 0 {
		*value = defaults[key].(int)
	}
}
