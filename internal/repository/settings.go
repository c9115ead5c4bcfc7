package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/sentinelsoc/sentinel/internal/database"
	"github.com/sentinelsoc/sentinel/internal/models"
)

// GetSetting loads one setting row.
func (r *Repository) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).Take(&setting, "setting_key = ?", strings.TrimSpace(key)).Error; err != nil {
		return nil, notFound(err)
	}
	return &setting, nil
}

// UpsertSetting stores value under key. An empty description keeps the
// existing one.
func (r *Repository) UpsertSetting(ctx context.Context, key, value, description string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("repository: setting key is required")
	}

	row := &models.Setting{
		Key:         key,
		Value:       value,
		Description: strings.TrimSpace(description),
		UpdatedAt:   r.now(),
	}

	updates := []string{"setting_value", "updated_at"}
	if row.Description != "" {
		updates = append(updates, "description")
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("repository: upsert setting %q: %w", key, err)
	}
	return nil
}

// ListSettings returns administrator-visible settings ordered by key.
func (r *Repository) ListSettings(ctx context.Context) ([]models.Setting, error) {
	var settings []models.Setting
	err := r.db.WithContext(ctx).
		Where("setting_key NOT LIKE ?", database.SystemSettingPrefix+"%").
		Order("setting_key ASC").
		Find(&settings).Error
	if err != nil {
		return nil, fmt.Errorf("repository: list settings: %w", err)
	}
	return settings, nil
}
