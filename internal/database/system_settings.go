package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/models"
)

// Recognised setting keys.
const (
	SettingOSINTRateLimit    = "osint_rate_limit"
	SettingMaxBulkSize       = "max_bulk_size"
	SettingWatchlistMaxItems = "watchlist_max_items"
	SettingAutoSaveResults   = "auto_save_results"
	SettingNotificationLevel = "notification_level"
)

// SystemSettingPrefix marks rows owned by the server itself. They are hidden
// from administrators and cannot be written through the settings API.
const SystemSettingPrefix = "system."

// KeyFingerprintSetting records which encryption key sealed the stored API keys.
const KeyFingerprintSetting = SystemSettingPrefix + "vault.key_fingerprint"

// DefaultSettings returns the settings inserted on first start.
func DefaultSettings() []models.Setting {
	return []models.Setting{
		{Key: SettingOSINTRateLimit, Value: "1000", Description: "Rate limit for OSINT API calls (milliseconds)"},
		{Key: SettingMaxBulkSize, Value: "100", Description: "Maximum number of items for bulk analysis"},
		{Key: SettingWatchlistMaxItems, Value: "50", Description: "Maximum items in watchlist"},
		{Key: SettingAutoSaveResults, Value: "1", Description: "Automatically save analysis results"},
		{Key: SettingNotificationLevel, Value: "high", Description: "Minimum notification level"},
	}
}

// GetSystemSetting retrieves a setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.Setting
	err := db.WithContext(ctx).Take(&setting, "setting_key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a setting value, leaving its description alone.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.Setting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("setting_key = ?", key).
		Assign(map[string]any{"setting_value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// EnsureKeyFingerprint records fingerprint on first use and reports whether
// a previously recorded fingerprint differs. A mismatch means API keys stored
// earlier were sealed with another key file and will not decrypt.
func EnsureKeyFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (mismatch bool, err error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return false, fmt.Errorf("system settings: key fingerprint is empty")
	}

	current, err := GetSystemSetting(ctx, db, KeyFingerprintSetting)
	if err != nil {
		return false, err
	}

	switch strings.TrimSpace(current) {
	case fingerprint:
		return false, nil
	case "":
		return false, UpsertSystemSetting(ctx, db, KeyFingerprintSetting, fingerprint)
	default:
		return true, nil
	}
}
