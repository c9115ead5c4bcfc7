package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Sentinel backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Lookup      LookupConfig      `mapstructure:"lookup"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int             `mapstructure:"port"`
	LogLevel       string          `mapstructure:"log_level"`
	LogFormat      string          `mapstructure:"log_format"`
	TrustedProxies []string        `mapstructure:"trusted_proxies"`
	LoginRateLimit RateLimitConfig `mapstructure:"login_rate_limit"`
}

// RateLimitConfig describes a token bucket: one token per Interval, up to Burst.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Burst    int           `mapstructure:"burst"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// VaultConfig locates the master key that seals stored API keys.
// MasterKey, when set, takes precedence over the key file.
type VaultConfig struct {
	KeyFile   string `mapstructure:"key_file"`
	MasterKey string `mapstructure:"master_key"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	SessionTTL       time.Duration   `mapstructure:"session_ttl"`
	LockoutThreshold int             `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration   `mapstructure:"lockout_duration"`
	Cookie           CookieConfig    `mapstructure:"cookie"`
	Bootstrap        BootstrapConfig `mapstructure:"bootstrap"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string `mapstructure:"name"`
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
}

// BootstrapConfig seeds the first administrator on an empty database.
// An empty password makes the server generate one and print it once.
type BootstrapConfig struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// LookupConfig tunes the threat-intelligence proxy.
type LookupConfig struct {
	Timeout          time.Duration     `mapstructure:"timeout"`
	MaxResponseBytes int64             `mapstructure:"max_response_bytes"`
	BaseURLs         map[string]string `mapstructure:"base_urls"`
}

// MaintenanceConfig schedules background cleanup.
type MaintenanceConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SessionSchedule    string `mapstructure:"session_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	// BackupDir defaults to a backups/ folder beside the sqlite file.
	BackupDir      string `mapstructure:"backup_dir"`
	BackupKeep     int    `mapstructure:"backup_keep"`
	BackupSchedule string `mapstructure:"backup_schedule"`
}

// MonitoringConfig enables metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SENTINEL")
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
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.login_rate_limit.enabled", true)
	v.SetDefault("server.login_rate_limit.interval", "6s")
	v.SetDefault("server.login_rate_limit.burst", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/sentinel.sqlite")

	v.SetDefault("vault.key_file", "./data/.encryption_key")
	v.SetDefault("vault.master_key", "")

	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.lockout_threshold", 5)
	v.SetDefault("auth.lockout_duration", "30m")
	v.SetDefault("auth.cookie.name", "siem_session")
	v.SetDefault("auth.cookie.secure", true)
	v.SetDefault("auth.cookie.domain", "")
	v.SetDefault("auth.bootstrap.username", "admin")
	v.SetDefault("auth.bootstrap.email", "admin@siem.local")
	v.SetDefault("auth.bootstrap.password", "")

	v.SetDefault("lookup.timeout", "30s")
	v.SetDefault("lookup.max_response_bytes", 10<<20)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.audit_schedule", "@daily")
	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.backup_dir", "")
	v.SetDefault("maintenance.backup_keep", 10)
	v.SetDefault("maintenance.backup_schedule", "@daily")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
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
