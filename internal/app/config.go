package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the clubhouse backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimits  RateLimitConfig   `mapstructure:"rate_limits"`
	Security    SecurityConfig    `mapstructure:"security"`
	Email       EmailConfig       `mapstructure:"email"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	LogLevel        string        `mapstructure:"log_level"`
	BaseURL         string        `mapstructure:"base_url"`
	SigninPath      string        `mapstructure:"signin_path"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// IsDevelopment reports whether the server runs in development mode (plain HTTP cookies,
// console logging).
func (c ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "development")
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	Session     SessionSettings `mapstructure:"session"`
	OTP         OTPSettings     `mapstructure:"otp"`
	AdminEmails []string        `mapstructure:"admin_emails"`
}

// SessionSettings configures session lifetimes.
type SessionSettings struct {
	TTL         time.Duration `mapstructure:"ttl"`
	RenewWindow time.Duration `mapstructure:"renew_window"`
	TokenBytes  int           `mapstructure:"token_bytes"`
}

// OTPSettings configures emailed one-time codes.
type OTPSettings struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Digits int           `mapstructure:"digits"`
}

// RateLimitConfig holds one limit per endpoint and key dimension.
type RateLimitConfig struct {
	SigninIP    LimitSettings `mapstructure:"signin_ip"`
	SigninEmail LimitSettings `mapstructure:"signin_email"`
	OTPVerify   LimitSettings `mapstructure:"otp_verify"`
	TokenVerify LimitSettings `mapstructure:"token_verify"`
}

// LimitSettings configures a token bucket: Capacity tokens, one regained per RefillInterval.
type LimitSettings struct {
	Capacity       int           `mapstructure:"capacity"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// SecurityConfig configures cookie sealing and scope.
type SecurityConfig struct {
	// CookieSecret seals the pending email cookie; hex or base64 of 32 bytes.
	CookieSecret string `mapstructure:"cookie_secret"`
	CookieDomain string `mapstructure:"cookie_domain"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	From    string `mapstructure:"from"`
	LogBody bool   `mapstructure:"log_body"`
}

// MaintenanceConfig schedules background sweeps using cron specifications.
type MaintenanceConfig struct {
	SessionSchedule    string `mapstructure:"session_schedule"`
	OTPSchedule        string `mapstructure:"otp_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	RateLimitSchedule  string `mapstructure:"rate_limit_schedule"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CLUBHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.signin_path", "/signin")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/clubhouse.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")
	v.SetDefault("database.log_level", "silent")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.session.ttl", "720h")          // 30 days
	v.SetDefault("auth.session.renew_window", "360h") // 15 days
	v.SetDefault("auth.session.token_bytes", 24)
	v.SetDefault("auth.otp.ttl", "10m")
	v.SetDefault("auth.otp.digits", 8)
	v.SetDefault("auth.admin_emails", []string{})

	v.SetDefault("rate_limits.signin_ip.capacity", 10)
	v.SetDefault("rate_limits.signin_ip.refill_interval", "6s")
	v.SetDefault("rate_limits.signin_email.capacity", 5)
	v.SetDefault("rate_limits.signin_email.refill_interval", "1m")
	v.SetDefault("rate_limits.otp_verify.capacity", 5)
	v.SetDefault("rate_limits.otp_verify.refill_interval", "1m")
	v.SetDefault("rate_limits.token_verify.capacity", 30)
	v.SetDefault("rate_limits.token_verify.refill_interval", "2s")

	v.SetDefault("security.cookie_secret", "")
	v.SetDefault("security.cookie_domain", "")

	v.SetDefault("email.from", "no-reply@localhost")
	v.SetDefault("email.log_body", false)

	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.otp_schedule", "@every 15m")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.rate_limit_schedule", "@every 5m")
	v.SetDefault("maintenance.audit_retention_days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
