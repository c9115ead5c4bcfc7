package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/app"
	iauth "github.com/sentinelsoc/sentinel/internal/auth"
	"github.com/sentinelsoc/sentinel/internal/handlers"
	"github.com/sentinelsoc/sentinel/internal/lookup"
	"github.com/sentinelsoc/sentinel/internal/middleware"
	"github.com/sentinelsoc/sentinel/internal/monitoring"
	"github.com/sentinelsoc/sentinel/internal/monitoring/checks"
	"github.com/sentinelsoc/sentinel/internal/security"
	"github.com/sentinelsoc/sentinel/internal/services"
)

// Deps bundles the long-lived services the router exposes.
type Deps struct {
	DB       *gorm.DB
	Config   *app.Config
	Auth     *iauth.Service
	Users    *services.UserService
	Keys     *services.APIKeyService
	Settings *services.SettingsService
	Backups  *services.BackupService
	Broker   *lookup.Broker
	// SessionTTL sets the cookie lifetime; it should match the repository's session window.
	SessionTTL time.Duration
	// Checks are readiness probes added after the database ping.
	Checks []monitoring.Check
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.Auth == nil:
		return fmt.Errorf("auth service must be provided")
	case d.Users == nil:
		return fmt.Errorf("user service must be provided")
	case d.Keys == nil:
		return fmt.Errorf("api key service must be provided")
	case d.Settings == nil:
		return fmt.Errorf("settings service must be provided")
	case d.Backups == nil:
		return fmt.Errorf("backup service must be provided")
	case d.Broker == nil:
		return fmt.Errorf("lookup broker must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	probes := monitoring.NewProbes()
	if deps.DB != nil {
		probes.Register(checks.Database(deps.DB, 0))
	}
	for _, check := range deps.Checks {
		probes.Register(check)
	}
	registerHealthRoutes(r, probes)
	registerMetricsRoutes(r, cfg.Monitoring.Prometheus)

	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = cfg.Auth.RepositoryConfig().SessionTTL
	}
	cookieName := cfg.Auth.CookieName()

	authHandler, err := handlers.NewAuthHandler(deps.Auth, handlers.CookieOptions{
		Name:   cookieName,
		Domain: cfg.Auth.Cookie.Domain,
		Secure: cfg.Auth.Cookie.Secure,
		TTL:    ttl,
	})
	if err != nil {
		return nil, err
	}
	userHandler, err := handlers.NewUserHandler(deps.Users)
	if err != nil {
		return nil, err
	}
	keyHandler, err := handlers.NewAPIKeyHandler(deps.Keys)
	if err != nil {
		return nil, err
	}
	settingsHandler, err := handlers.NewSettingsHandler(deps.Settings)
	if err != nil {
		return nil, err
	}
	backupHandler, err := handlers.NewBackupHandler(deps.Backups)
	if err != nil {
		return nil, err
	}
	lookupHandler, err := handlers.NewLookupHandler(deps.Broker, deps.Settings)
	if err != nil {
		return nil, err
	}

	auditHandler, err := handlers.NewSecurityAuditHandler(security.NewAuditService(deps.DB, cfg))
	if err != nil {
		return nil, err
	}

	loginLimiter := middleware.NewRateLimiter(cfg.Server.LoginLimiterConfig())

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.SessionAuth(deps.Auth, cookieName))

	registerAuthRoutes(r, api, authRouteDeps{
		Handler:      authHandler,
		LoginLimiter: loginLimiter,
	})
	registerUserRoutes(api, userHandler)
	registerConfigRoutes(api, keyHandler, settingsHandler, auditHandler, backupHandler)
	registerLookupRoutes(api, lookupHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
