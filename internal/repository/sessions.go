package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/pkg/crypto"
)

// SessionMeta captures contextual information about the client. Both fields
// are informational.
type SessionMeta struct {
	IPAddress string
	UserAgent string
}

// CreateSession issues a new 64-character hex token valid for SessionTTL.
func (r *Repository) CreateSession(ctx context.Context, userID string, meta SessionMeta) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: user id is required")
	}

	token, err := crypto.GenerateHexToken(sessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("repository: generate session token: %w", err)
	}

	now := r.now()
	session := &models.Session{
		UserID:    userID,
		Token:     token,
		IPAddress: truncate(strings.TrimSpace(meta.IPAddress), 64),
		UserAgent: truncate(strings.TrimSpace(meta.UserAgent), 512),
		ExpiresAt: now.Add(r.sessionTTL),
		CreatedAt: now,
	}

	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("repository: create session: %w", err)
	}
	return session, nil
}

// ValidateSession returns the owner of token when the session has not expired
// and the owner is active. Every other case yields ErrSessionInvalid.
func (r *Repository) ValidateSession(ctx context.Context, token string) (*UserView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionInvalid
	}

	var view UserView
	res := r.db.WithContext(ctx).
		Table("user_sessions AS s").
		Select("u.id, u.username, u.email, u.role").
		Joins("JOIN users AS u ON u.id = s.user_id").
		Where("s.session_token = ? AND s.expires_at > ? AND u.is_active = ?", token, r.now(), true).
		Limit(1).
		Scan(&view)
	if res.Error != nil {
		return nil, fmt.Errorf("repository: validate session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionInvalid
	}
	return &view, nil
}

// DestroySession deletes the session. Unknown tokens are not an error.
func (r *Repository) DestroySession(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("session_token = ?", token).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("repository: destroy session: %w", err)
	}
	return nil
}

// SessionOwner returns the username behind token regardless of expiry, for audit records.
func (r *Repository) SessionOwner(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNotFound
	}

	var username string
	res := r.db.WithContext(ctx).
		Table("user_sessions AS s").
		Select("u.username").
		Joins("JOIN users AS u ON u.id = s.user_id").
		Where("s.session_token = ?", token).
		Limit(1).
		Scan(&username)
	if res.Error != nil {
		return "", fmt.Errorf("repository: session owner: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return username, nil
}

// DestroyUserSessions deletes every session owned by userID.
func (r *Repository) DestroyUserSessions(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("repository: destroy user sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SweepExpiredSessions deletes sessions whose expiry has passed.
func (r *Repository) SweepExpiredSessions(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", r.now()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("repository: sweep sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountActiveSessions returns the number of unexpired sessions.
func (r *Repository) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Session{}).Where("expires_at > ?", r.now()).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("repository: count sessions: %w", err)
	}
	return count, nil
}
