package app

import (
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sentinelsoc/sentinel/internal/lookup"
	"github.com/sentinelsoc/sentinel/internal/middleware"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/internal/services"
)

const defaultCookieName = "siem_session"

// RepositoryConfig converts AuthConfig into repository parameters.
// Zero values fall back to the repository defaults.
func (c AuthConfig) RepositoryConfig() repository.Config {
	ttl := c.SessionTTL
	if ttl <= 0 {
		ttl = repository.DefaultSessionTTL
	}

	threshold := c.LockoutThreshold
	if threshold <= 0 {
		threshold = repository.DefaultLockoutThreshold
	}

	duration := c.LockoutDuration
	if duration <= 0 {
		duration = repository.DefaultLockoutDuration
	}

	return repository.Config{
		SessionTTL:       ttl,
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// CookieName returns the configured session cookie name.
func (c AuthConfig) CookieName() string {
	if name := strings.TrimSpace(c.Cookie.Name); name != "" {
		return name
	}
	return defaultCookieName
}

// BootstrapAdmin converts the bootstrap section into service input.
func (c AuthConfig) BootstrapAdmin() services.BootstrapAdmin {
	username := strings.TrimSpace(c.Bootstrap.Username)
	if username == "" {
		username = services.DefaultBootstrapUsername
	}
	email := strings.TrimSpace(c.Bootstrap.Email)
	if email == "" {
		email = services.DefaultBootstrapEmail
	}
	return services.BootstrapAdmin{
		Username: username,
		Email:    email,
		Password: c.Bootstrap.Password,
	}
}

// LoginLimiterConfig converts the login rate limit section. A disabled
// limiter is expressed as an infinite rate.
func (c ServerConfig) LoginLimiterConfig() middleware.RateLimiterConfig {
	cfg := middleware.LoginRateLimit()
	if !c.LoginRateLimit.Enabled {
		cfg.Rate = rate.Inf
		return cfg
	}
	if c.LoginRateLimit.Interval > 0 {
		cfg.Rate = rate.Every(c.LoginRateLimit.Interval)
	}
	if c.LoginRateLimit.Burst > 0 {
		cfg.Burst = c.LoginRateLimit.Burst
	}
	return cfg
}

// BrokerConfig converts LookupConfig into broker parameters. The
// inter-request delay is a runtime setting and is applied separately.
func (c LookupConfig) BrokerConfig() lookup.Config {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = lookup.DefaultTimeout
	}

	maxBytes := c.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = lookup.DefaultMaxResponseBytes
	}

	var overrides map[string]string
	for service, base := range c.BaseURLs {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		if overrides == nil {
			overrides = make(map[string]string, len(c.BaseURLs))
		}
		overrides[strings.ToLower(strings.TrimSpace(service))] = base
	}

	return lookup.Config{
		Timeout:          timeout,
		MaxResponseBytes: maxBytes,
		BaseURLs:         overrides,
	}
}

// AuditRetention returns how long auth log entries are kept, or zero to keep them forever.
func (c MaintenanceConfig) AuditRetention() time.Duration {
	if c.AuditRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}
