package app

import (
	"fmt"
	"net/url"
	"strings"
)

// ApplyRuntimeDefaults fills values that must never be empty, even when no
// configuration file is supplied. It returns the keys it changed so callers
// can log the event.
func ApplyRuntimeDefaults(cfg *Config) (map[string]bool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	changed := make(map[string]bool)

	if strings.TrimSpace(cfg.Vault.KeyFile) == "" && strings.TrimSpace(cfg.Vault.MasterKey) == "" {
		cfg.Vault.KeyFile = "./data/.encryption_key"
		changed["vault.key_file"] = true
	}

	if strings.TrimSpace(cfg.Auth.Cookie.Name) == "" {
		cfg.Auth.Cookie.Name = defaultCookieName
		changed["auth.cookie.name"] = true
	}

	if cfg.Monitoring.Prometheus.Enabled && !strings.HasPrefix(cfg.Monitoring.Prometheus.Endpoint, "/") {
		cfg.Monitoring.Prometheus.Endpoint = "/metrics"
		changed["monitoring.prometheus.endpoint"] = true
	}

	return changed, nil
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (current: %d)", cfg.Server.Port)
	}
	if cfg.Auth.LockoutThreshold < 0 {
		return fmt.Errorf("auth.lockout_threshold must not be negative")
	}
	if cfg.Auth.SessionTTL < 0 || cfg.Auth.LockoutDuration < 0 {
		return fmt.Errorf("auth durations must not be negative")
	}
	for service, base := range cfg.Lookup.BaseURLs {
		if strings.TrimSpace(base) == "" {
			continue
		}
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("lookup.base_urls.%s must be an absolute URL", service)
		}
	}
	return nil
}
