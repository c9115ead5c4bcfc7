package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/pkg/crypto"
)

// NewUser carries the input for CreateUser. Password is plaintext and is
// hashed before it reaches the store.
type NewUser struct {
	Username string
	Email    string
	Password string
	Role     models.Role
}

// UserView is the non-sensitive projection of a user returned to callers.
type UserView struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
}

// ViewOf projects a user row.
func ViewOf(u *models.User) *UserView {
	if u == nil {
		return nil
	}
	return &UserView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// LockoutState reports the account state after a failed attempt.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
	// Locked is true when this attempt is the one that started the lockout.
	Locked bool
}

// CreateUser hashes the password with Argon2id and inserts an active user.
// Usernames and emails are unique case-insensitively, and across each other,
// so that a login identifier resolves to at most one account. The unique
// indexes on username_key and email hold that even when two creates race
// past the pre-check.
func (r *Repository) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, errors.New("repository: username, email and password are required")
	}
	role := in.Role
	if role == "" {
		role = models.RoleViewer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("repository: unknown role %q", role)
	}

	lowered := models.UsernameKeyOf(username)
	var existing int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("username_key IN ? OR LOWER(username) IN ? OR LOWER(email) IN ?",
			[]string{lowered, email}, []string{lowered, email}, []string{lowered, email}).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("repository: check user uniqueness: %w", err)
	}
	if existing > 0 {
		return nil, ErrDuplicateUser
	}

	hash, err := crypto.HashPasswordWithParams(in.Password, r.passwordParams)
	if err != nil {
		return nil, fmt.Errorf("repository: hash password: %w", err)
	}

	now := r.now()
	user := &models.User{
		BaseModel:    models.BaseModel{CreatedAt: now, UpdatedAt: now},
		Username:     username,
		UsernameKey:  lowered,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}

	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("repository: create user: %w", err)
	}
	return user, nil
}

// FindUserForLogin resolves a username or email, case-insensitively.
func (r *Repository) FindUserForLogin(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ErrNotFound
	}

	var user models.User
	err := r.db.WithContext(ctx).
		Where("username_key = ? OR email = ?", identifier, identifier).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// RecordFailedAttempt bumps the failure counter in one atomic UPDATE and,
// once the counter reaches the threshold, opens a lockout window unless one
// is already running. Concurrent callers never lose an increment and at most
// one of them reports Locked.
func (r *Repository) RecordFailedAttempt(ctx context.Context, userID string) (LockoutState, error) {
	now := r.now()
	db := r.db.WithContext(ctx)

	res := db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"failed_attempts": gorm.Expr("failed_attempts + 1"),
			"updated_at":      now,
		})
	if res.Error != nil {
		return LockoutState{}, fmt.Errorf("repository: record failed attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return LockoutState{}, ErrNotFound
	}

	lock := db.Model(&models.User{}).
		Where("id = ? AND failed_attempts >= ? AND (locked_until IS NULL OR locked_until <= ?)", userID, r.lockoutThreshold, now).
		UpdateColumn("locked_until", now.Add(r.lockoutDuration))
	if lock.Error != nil {
		return LockoutState{}, fmt.Errorf("repository: apply lockout: %w", lock.Error)
	}

	var user models.User
	if err := db.Select("failed_attempts", "locked_until").Take(&user, "id = ?", userID).Error; err != nil {
		return LockoutState{}, fmt.Errorf("repository: load lockout state: %w", notFound(err))
	}

	return LockoutState{
		FailedAttempts: user.FailedAttempts,
		LockedUntil:    user.LockedUntil,
		Locked:         lock.RowsAffected == 1,
	}, nil
}

// ResetFailedAttempts zeroes the counter and clears any lockout.
func (r *Repository) ResetFailedAttempts(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"failed_attempts": 0,
			"locked_until":    nil,
			"updated_at":      r.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("repository: reset failed attempts: %w", err)
	}
	return nil
}

// RecordLogin stamps the last successful login.
func (r *Repository) RecordLogin(ctx context.Context, userID, ipAddress string) error {
	now := r.now()
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"last_login_at": now,
			"last_login_ip": truncate(strings.TrimSpace(ipAddress), 64),
			"updated_at":    now,
		}).Error
	if err != nil {
		return fmt.Errorf("repository: record login: %w", err)
	}
	return nil
}

// GetUser loads a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Take(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListUsers returns every user ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("repository: list users: %w", err)
	}
	return users, nil
}

// SetUserActive flips the active flag. Sessions are left in place; they stop
// validating through the join in ValidateSession.
func (r *Repository) SetUserActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"is_active":  active,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("repository: set user active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the number of user rows.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("repository: count users: %w", err)
	}
	return count, nil
}
