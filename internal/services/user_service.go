package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/pkg/crypto"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/validator"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New(apperrors.KindNotFound, "USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = apperrors.New(apperrors.KindValidation, "USER_EXISTS", "Username or email already exists", http.StatusConflict)
	// ErrSelfDeactivation stops an administrator from locking themselves out.
	ErrSelfDeactivation = apperrors.New(apperrors.KindValidation, "USER_SELF_DEACTIVATION", "You cannot deactivate your own account", http.StatusBadRequest)
)

const (
	DefaultBootstrapUsername = "admin"
	DefaultBootstrapEmail    = "admin@siem.local"
)

func init() {
	if err := validator.RegisterEnum("role", models.RoleNames()...); err != nil {
		panic(fmt.Sprintf("register role validation: %v", err))
	}
}

// UserStore is the subset of the repository used for account management.
type UserStore interface {
	CreateUser(ctx context.Context, in repository.NewUser) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserActive(ctx context.Context, id string, active bool) error
	CountUsers(ctx context.Context) (int64, error)
}

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,min=3,max=50,printascii,excludes=@"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=256"`
	Role     string `json:"role" validate:"omitempty,role"`
}

// UserSummary is the administrative view of an account.
type UserSummary struct {
	ID             string      `json:"id"`
	Username       string      `json:"username"`
	Email          string      `json:"email"`
	Role           models.Role `json:"role"`
	IsActive       bool        `json:"is_active"`
	FailedAttempts int         `json:"failed_attempts"`
	LockedUntil    *time.Time  `json:"locked_until,omitempty"`
	LastLoginAt    *time.Time  `json:"last_login_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

func summarise(u *models.User) UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		Email:          u.Email,
		Role:           u.Role,
		IsActive:       u.IsActive,
		FailedAttempts: u.FailedAttempts,
		LockedUntil:    u.LockedUntil,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}
}

// BootstrapAdmin configures the first-run administrator.
type BootstrapAdmin struct {
	Username string
	Email    string
	// Password is generated when empty.
	Password string
}

// BootstrapResult reports what EnsureBootstrapAdmin did.
type BootstrapResult struct {
	Created  bool
	Username string
	// Password is set only when it was generated and must be shown to the operator once.
	Password string
}

// UserService manages account creation and activation.
type UserService struct {
	store UserStore
	log   *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(store UserStore) (*UserService, error) {
	if store == nil {
		return nil, errors.New("user service: store is required")
	}
	return &UserService{store: store, log: logger.WithModule("users")}, nil
}

// Create validates input and provisions an active user. Role defaults to analyst.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*UserSummary, error) {
	ctx = ensureContext(ctx)

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.Role = strings.TrimSpace(input.Role)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	role := models.RoleAnalyst
	if input.Role != "" {
		role, _ = models.ParseRole(input.Role)
	}

	user, err := s.store.CreateUser(ctx, repository.NewUser{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
		Role:     role,
	})
	if errors.Is(err, repository.ErrDuplicateUser) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, apperrors.NewPersistence(fmt.Errorf("user service: create user: %w", err))
	}

	s.log.Info("user created", withActor(ctx, zap.String("username", user.Username), zap.String("role", string(user.Role)))...)
	summary := summarise(user)
	return &summary, nil
}

// List returns all users ordered by username.
func (s *UserService) List(ctx context.Context) ([]UserSummary, error) {
	users, err := s.store.ListUsers(ensureContext(ctx))
	if err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	out := make([]UserSummary, 0, len(users))
	for i := range users {
		out = append(out, summarise(&users[i]))
	}
	return out, nil
}

// SetActive activates or deactivates a user. A deactivated user's sessions
// stay in the store but no longer validate.
func (s *UserService) SetActive(ctx context.Context, actorID, userID string, active bool) (*UserSummary, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required")
	}
	if !active && actorID == userID {
		return nil, ErrSelfDeactivation
	}

	if err := s.store.SetUserActive(ctx, userID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperrors.NewPersistence(err)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperrors.NewPersistence(err)
	}

	s.log.Info("user activation changed", withActor(ctx,
		zap.String("username", user.Username),
		zap.Bool("active", active))...)
	summary := summarise(user)
	return &summary, nil
}

// EnsureBootstrapAdmin creates the first administrator when the user table is empty.
func (s *UserService) EnsureBootstrapAdmin(ctx context.Context, cfg BootstrapAdmin) (*BootstrapResult, error) {
	ctx = ensureContext(ctx)

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("user service: count users: %w", err)
	}
	if count > 0 {
		return &BootstrapResult{}, nil
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = DefaultBootstrapUsername
	}
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		email = DefaultBootstrapEmail
	}

	password := cfg.Password
	generated := false
	if password == "" {
		password, err = crypto.GenerateToken(18)
		if err != nil {
			return nil, fmt.Errorf("user service: generate bootstrap password: %w", err)
		}
		generated = true
	}

	user, err := s.store.CreateUser(ctx, repository.NewUser{
		Username: username,
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("user service: create bootstrap admin: %w", err)
	}

	result := &BootstrapResult{Created: true, Username: user.Username}
	if generated {
		result.Password = password
	}
	return result, nil
}
