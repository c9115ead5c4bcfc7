package security

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/app"
	"github.com/sentinelsoc/sentinel/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const maxRecommendedSessionTTL = 7 * 24 * time.Hour

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// AuditService evaluates the deployment's security posture.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. Missing inputs degrade the
// affected checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{s.checkAdminPresent(ctx)}
	if s.cfg == nil {
		checks = append(checks, Check{
			ID:          "configuration",
			Status:      StatusWarn,
			Message:     "Configuration not loaded; configuration checks skipped.",
			Remediation: "Load configuration before running the security audit.",
		})
	} else {
		checks = append(checks,
			s.checkCookie(),
			s.checkMasterKey(),
			s.checkSessionTTL(),
			s.checkLoginRateLimit(),
			s.checkBootstrapPassword(),
		)
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkAdminPresent(ctx context.Context) Check {
	const id = "active_admin_present"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to confirm an active administrator.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Count(&count).Error
	if err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Could not count administrators.",
			Remediation: "Retry after resolving database errors.",
		}
	}
	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No active administrator found.",
			Remediation: "Run `sentinel-server create-user -role admin` to restore administrative access.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Active administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkCookie() Check {
	const id = "session_cookie_secure"
	if !s.cfg.Auth.Cookie.Secure {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Session cookie is sent over plain HTTP.",
			Remediation: "Serve the dashboard over HTTPS and set SENTINEL_AUTH_COOKIE_SECURE=true.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Session cookie requires HTTPS."}
}

func (s *AuditService) checkMasterKey() Check {
	const id = "master_key_storage"
	if strings.TrimSpace(s.cfg.Vault.MasterKey) != "" {
		return Check{ID: id, Status: StatusPass, Message: "Master key supplied through configuration."}
	}

	path := strings.TrimSpace(s.cfg.Vault.KeyFile)
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Master key file is not readable.",
			Remediation: "Check vault.key_file; stored API keys cannot be decrypted without it.",
		}
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Master key file permissions are %#o.", mode),
			Remediation: fmt.Sprintf("Run `chmod 600 %s`.", path),
			Details:     map[string]any{"path": path},
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Master key file is readable by its owner only.",
		Details: map[string]any{"path": path},
	}
}

func (s *AuditService) checkSessionTTL() Check {
	const id = "session_ttl"
	ttl := s.cfg.Auth.RepositoryConfig().SessionTTL
	if ttl > maxRecommendedSessionTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Session lifetime (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedSessionTTL),
			Remediation: "Lower auth.session_ttl to limit the exposure of stolen cookies.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Session lifetime is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (s *AuditService) checkLoginRateLimit() Check {
	const id = "login_rate_limit"
	if !s.cfg.Server.LoginRateLimit.Enabled {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Login requests are not rate limited per client.",
			Remediation: "Enable server.login_rate_limit; account lockout alone does not slow username enumeration.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Login requests are rate limited per client."}
}

func (s *AuditService) checkBootstrapPassword() Check {
	const id = "bootstrap_password"
	if s.cfg.Auth.Bootstrap.Password != "" {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "A bootstrap administrator password is present in configuration.",
			Remediation: "Remove auth.bootstrap.password once the first administrator has logged in.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "No bootstrap password in configuration."}
}
