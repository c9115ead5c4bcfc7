// Package auth implements the login state machine, logout and session
// authentication on top of the credential repository.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/pkg/crypto"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/metrics"
)

// Audit messages recorded in the auth log. They never reach the caller.
const (
	msgNonexistentUser = "nonexistent user"
	msgDisabledAccount = "disabled account"
	msgAccountLocked   = "account locked"
	msgInvalidPassword = "invalid password"
	msgLockTriggered   = "invalid password; account locked"
	msgLoginSucceeded  = "login successful"
	msgLogout          = "logout"
)

// Store is the subset of the repository the Service depends on.
type Store interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
	FindUserForLogin(ctx context.Context, identifier string) (*models.User, error)
	RecordFailedAttempt(ctx context.Context, userID string) (repository.LockoutState, error)
	ResetFailedAttempts(ctx context.Context, userID string) error
	RecordLogin(ctx context.Context, userID, ipAddress string) error
	CreateSession(ctx context.Context, userID string, meta repository.SessionMeta) (*models.Session, error)
	ValidateSession(ctx context.Context, token string) (*repository.UserView, error)
	DestroySession(ctx context.Context, token string) error
	SessionOwner(ctx context.Context, token string) (string, error)
	AppendAuthLog(ctx context.Context, entry repository.AuthLogEntry) error
	ListAuthLogs(ctx context.Context, limit int) ([]models.AuthLog, error)
}

// Credentials is a login attempt.
type Credentials struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// RequestMeta describes the client behind a non-login request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// LoginResult is returned on a successful login. Token is the bearer credential.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *repository.UserView
}

// Service manages logins, logouts and session authentication.
type Service struct {
	store Store
	now   func() time.Time
	log   *zap.Logger

	passwordParams crypto.Argon2Parameters
	dummyOnce      sync.Once
	dummyHash      string
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the clock used to evaluate lockouts. It must agree with the repository clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPasswordParams sets the Argon2 cost used for the decoy verification
// performed for unknown users. It should match the cost of stored hashes.
func WithPasswordParams(params crypto.Argon2Parameters) Option {
	return func(s *Service) {
		if !params.IsZero() {
			s.passwordParams = params
		}
	}
}

// NewService constructs the authentication service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth service: store is required")
	}

	svc := &Service{
		store:          store,
		now:            time.Now,
		log:            logger.WithModule("auth"),
		passwordParams: crypto.DefaultPasswordParams(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Login runs the login state machine. Every authentication failure is
// reported as ErrInvalidCredentials; the specific cause goes to the auth log.
func (s *Service) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	identifier := strings.TrimSpace(creds.Identifier)
	if identifier == "" || creds.Password == "" {
		return nil, apperrors.NewValidation("Username and password are required")
	}

	if removed, err := s.store.SweepExpiredSessions(ctx); err != nil {
		s.log.Warn("sweep expired sessions failed", zap.Error(err))
	} else if removed > 0 {
		metrics.SessionsSwept.Add(float64(removed))
	}

	entry := repository.AuthLogEntry{
		Username:  identifier,
		Action:    models.AuthActionLogin,
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
	}

	user, err := s.store.FindUserForLogin(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		crypto.VerifyPassword(s.decoyHash(), creds.Password)
		return nil, s.reject(ctx, entry, msgNonexistentUser)
	}
	if err != nil {
		return nil, s.persistence("find user", err)
	}
	entry.Username = user.Username

	if !user.IsActive {
		return nil, s.reject(ctx, entry, msgDisabledAccount)
	}

	now := s.now()
	if user.IsLocked(now) {
		return nil, s.reject(ctx, entry, msgAccountLocked)
	}
	if user.LockedUntil != nil {
		// The previous lockout has elapsed; start counting afresh.
		if err := s.store.ResetFailedAttempts(ctx, user.ID); err != nil {
			return nil, s.persistence("reset elapsed lockout", err)
		}
	}

	if !crypto.VerifyPassword(user.PasswordHash, creds.Password) {
		state, err := s.store.RecordFailedAttempt(ctx, user.ID)
		if err != nil {
			return nil, s.persistence("record failed attempt", err)
		}
		message := msgInvalidPassword
		if state.Locked {
			message = msgLockTriggered
			metrics.AccountLockouts.Inc()
			s.log.Warn("account locked after repeated failures",
				zap.String("username", user.Username),
				zap.Int("failed_attempts", state.FailedAttempts))
		}
		return nil, s.reject(ctx, entry, message)
	}

	if user.FailedAttempts > 0 {
		if err := s.store.ResetFailedAttempts(ctx, user.ID); err != nil {
			return nil, s.persistence("reset failed attempts", err)
		}
	}
	if err := s.store.RecordLogin(ctx, user.ID, creds.IPAddress); err != nil {
		return nil, s.persistence("record login", err)
	}

	session, err := s.store.CreateSession(ctx, user.ID, repository.SessionMeta{
		IPAddress: creds.IPAddress,
		UserAgent: creds.UserAgent,
	})
	if err != nil {
		return nil, s.persistence("create session", err)
	}

	entry.Success = true
	entry.Message = msgLoginSucceeded
	s.audit(ctx, entry)
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	return &LoginResult{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		User:      repository.ViewOf(user),
	}, nil
}

// Logout destroys the session behind token. It never fails from the caller's
// point of view: unknown, expired and repeated tokens are all accepted.
func (s *Service) Logout(ctx context.Context, token string, meta RequestMeta) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}

	username, err := s.store.SessionOwner(ctx, token)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log.Warn("resolve session owner failed", zap.Error(err))
	}

	if err := s.store.DestroySession(ctx, token); err != nil {
		s.log.Error("destroy session failed", zap.Error(err))
		return
	}

	if username != "" {
		s.audit(ctx, repository.AuthLogEntry{
			Username:  username,
			Action:    models.AuthActionLogout,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Success:   true,
			Message:   msgLogout,
		})
	}
}

// Authenticate maps a session token to its user. Invalid sessions yield
// apperrors.ErrUnauthorized without saying why.
func (s *Service) Authenticate(ctx context.Context, token string) (*repository.UserView, error) {
	view, err := s.store.ValidateSession(ctx, token)
	if errors.Is(err, repository.ErrSessionInvalid) {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, s.persistence("validate session", err)
	}
	return view, nil
}

// AuthLogs returns the newest auth log entries.
func (s *Service) AuthLogs(ctx context.Context, limit int) ([]models.AuthLog, error) {
	logs, err := s.store.ListAuthLogs(ctx, limit)
	if err != nil {
		return nil, s.persistence("list auth logs", err)
	}
	return logs, nil
}

func (s *Service) reject(ctx context.Context, entry repository.AuthLogEntry, message string) error {
	entry.Success = false
	entry.Message = message
	s.audit(ctx, entry)
	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	return apperrors.ErrInvalidCredentials
}

// audit is best-effort: a failed write is logged and otherwise ignored.
func (s *Service) audit(ctx context.Context, entry repository.AuthLogEntry) {
	if err := s.store.AppendAuthLog(ctx, entry); err != nil {
		s.log.Warn("append auth log failed",
			zap.String("action", entry.Action),
			zap.String("username", entry.Username),
			zap.Error(err))
	}
}

func (s *Service) persistence(op string, err error) error {
	s.log.Error("auth store failure", zap.String("op", op), zap.Error(err))
	return apperrors.NewPersistence(err)
}

// decoyHash returns a hash that never matches, used to keep the response time
// for unknown users close to that of a real verification.
func (s *Service) decoyHash() string {
	s.dummyOnce.Do(func() {
		token, err := crypto.GenerateToken(24)
		if err != nil {
			token = "sentinel-decoy-password"
		}
		hash, err := crypto.HashPasswordWithParams(token, s.passwordParams)
		if err != nil {
			s.log.Warn("prepare decoy hash failed", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
