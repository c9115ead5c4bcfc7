package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sentinelsoc/sentinel/internal/models"
)

const (
	defaultAuthLogLimit = 100
	maxAuthLogLimit     = 1000
)

// AuthLogEntry is one authentication event.
type AuthLogEntry struct {
	Username  string
	Action    string
	IPAddress string
	UserAgent string
	Success   bool
	Message   string
}

// AppendAuthLog writes an auth log row stamped with the repository clock.
func (r *Repository) AppendAuthLog(ctx context.Context, entry AuthLogEntry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		action = models.AuthActionLogin
	}

	row := &models.AuthLog{
		Username:  truncate(strings.TrimSpace(entry.Username), 255),
		Action:    truncate(action, 16),
		IPAddress: truncate(strings.TrimSpace(entry.IPAddress), 64),
		UserAgent: truncate(strings.TrimSpace(entry.UserAgent), 512),
		Success:   entry.Success,
		Message:   truncate(entry.Message, 255),
		CreatedAt: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("repository: append auth log: %w", err)
	}
	return nil
}

// ClampAuthLogLimit normalises a caller-supplied limit into [1, 1000], with 0 meaning the default of 100.
func ClampAuthLogLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultAuthLogLimit
	case limit > maxAuthLogLimit:
		return maxAuthLogLimit
	default:
		return limit
	}
}

// ListAuthLogs returns the newest entries first.
func (r *Repository) ListAuthLogs(ctx context.Context, limit int) ([]models.AuthLog, error) {
	var logs []models.AuthLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(ClampAuthLogLimit(limit)).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list auth logs: %w", err)
	}
	return logs, nil
}

// PruneAuthLogs deletes entries created before cutoff.
func (r *Repository) PruneAuthLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&models.AuthLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("repository: prune auth logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
