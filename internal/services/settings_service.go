package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/database"
	"github.com/sentinelsoc/sentinel/internal/models"
	apperrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/validator"
)

// NotificationLevels lists accepted values of the notification_level setting, lowest first.
var NotificationLevels = []string{"low", "medium", "high", "critical"}

// SettingsStore is the subset of the repository holding key/value settings.
type SettingsStore interface {
	UpsertSetting(ctx context.Context, key, value, description string) error
	ListSettings(ctx context.Context) ([]models.Setting, error)
}

// Settings is the typed view of the settings table. Keys the server does not
// interpret are kept verbatim in Extra.
type Settings struct {
	OSINTRateLimit    int               `json:"osint_rate_limit"`
	MaxBulkSize       int               `json:"max_bulk_size"`
	WatchlistMaxItems int               `json:"watchlist_max_items"`
	AutoSaveResults   bool              `json:"auto_save_results"`
	NotificationLevel string            `json:"notification_level"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// OSINTInterval is the minimum delay between two lookups against one service.
func (s Settings) OSINTInterval() time.Duration {
	return time.Duration(s.OSINTRateLimit) * time.Millisecond
}

// DefaultSettingsValues returns the typed defaults matching the seeded rows.
func DefaultSettingsValues() Settings {
	return Settings{
		OSINTRateLimit:    1000,
		MaxBulkSize:       100,
		WatchlistMaxItems: 50,
		AutoSaveResults:   true,
		NotificationLevel: "high",
		Extra:             map[string]string{},
	}
}

type settingRule struct {
	tag       string
	normalise func(string) (string, error)
}

func intValue(raw string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("must be an integer")
	}
	return strconv.Itoa(n), nil
}

func boolValue(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return "1", nil
	case "0", "false", "no", "off":
		return "0", nil
	default:
		return "", fmt.Errorf("must be a boolean")
	}
}

func levelValue(raw string) (string, error) {
	level := strings.ToLower(strings.TrimSpace(raw))
	if !containsString(NotificationLevels, level) {
		return "", fmt.Errorf("must be one of %s", strings.Join(NotificationLevels, ", "))
	}
	return level, nil
}

var settingRules = map[string]settingRule{
	database.SettingOSINTRateLimit:    {tag: "gte=0,lte=600000", normalise: intValue},
	database.SettingMaxBulkSize:       {tag: "gte=1,lte=1000", normalise: intValue},
	database.SettingWatchlistMaxItems: {tag: "gte=1,lte=10000", normalise: intValue},
	database.SettingAutoSaveResults:   {normalise: boolValue},
	database.SettingNotificationLevel: {normalise: levelValue},
}

// SettingsService reads and writes dashboard settings.
type SettingsService struct {
	store SettingsStore
	log   *zap.Logger

	mu    sync.RWMutex
	hooks []func(Settings)
}

// NewSettingsService constructs the service.
func NewSettingsService(store SettingsStore) (*SettingsService, error) {
	if store == nil {
		return nil, errors.New("settings service: store is required")
	}
	return &SettingsService{store: store, log: logger.WithModule("settings")}, nil
}

// OnChange registers fn to run with the fresh settings after every successful write and on Apply.
func (s *SettingsService) OnChange(fn func(Settings)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// List returns the raw setting rows.
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	rows, err := s.store.ListSettings(ensureContext(ctx))
	if err != nil {
		return nil, apperrors.NewPersistence(err)
	}
	return rows, nil
}

// Load returns the typed settings. Recognised rows holding values that no
// longer parse fall back to their defaults.
func (s *SettingsService) Load(ctx context.Context) (Settings, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return Settings{}, err
	}

	settings := DefaultSettingsValues()
	for _, row := range rows {
		if _, known := settingRules[row.Key]; !known {
			settings.Extra[row.Key] = row.Value
			continue
		}
		value, err := normaliseSetting(row.Key, row.Value)
		if err != nil {
			s.log.Warn("ignoring invalid stored setting", zap.String("key", row.Key), zap.Error(err))
			continue
		}
		assignSetting(&settings, row.Key, value)
	}
	return settings, nil
}

// Set validates and stores one setting, then notifies change hooks.
func (s *SettingsService) Set(ctx context.Context, key, value, description string) error {
	ctx = ensureContext(ctx)

	key = strings.TrimSpace(key)
	if key == "" {
		return apperrors.NewValidation("Setting key required")
	}
	if len(key) > 100 || strings.ContainsAny(key, " \t\r\n") {
		return apperrors.NewValidation("Invalid setting key")
	}
	if strings.HasPrefix(key, database.SystemSettingPrefix) {
		return apperrors.NewValidation("Setting key is reserved")
	}
	if len(value) > 4096 {
		return apperrors.NewValidation("Setting value is too long")
	}

	if _, known := settingRules[key]; known {
		normalised, err := normaliseSetting(key, value)
		if err != nil {
			return apperrors.NewValidation(fmt.Sprintf("Invalid value for %s: %v", key, err))
		}
		value = normalised
	}

	if err := s.store.UpsertSetting(ctx, key, value, description); err != nil {
		return apperrors.NewPersistence(err)
	}
	s.log.Info("setting updated", withActor(ctx, zap.String("key", key))...)

	return s.Apply(ctx)
}

// Apply loads the settings and runs every change hook.
func (s *SettingsService) Apply(ctx context.Context) error {
	settings, err := s.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.RLock()
	hooks := append([]func(Settings){}, s.hooks...)
	s.mu.RUnlock()

	for _, hook := range hooks {
		hook(settings)
	}
	return nil
}

func normaliseSetting(key, raw string) (string, error) {
	rule := settingRules[key]
	value, err := rule.normalise(raw)
	if err != nil {
		return "", err
	}
	if rule.tag != "" {
		n, _ := strconv.Atoi(value)
		if err := validator.ValidateVar(n, rule.tag); err != nil {
			return "", fmt.Errorf("out of range (%s)", rule.tag)
		}
	}
	return value, nil
}

func assignSetting(s *Settings, key, value string) {
	switch key {
	case database.SettingOSINTRateLimit:
		s.OSINTRateLimit, _ = strconv.Atoi(value)
	case database.SettingMaxBulkSize:
		s.MaxBulkSize, _ = strconv.Atoi(value)
	case database.SettingWatchlistMaxItems:
		s.WatchlistMaxItems, _ = strconv.Atoi(value)
	case database.SettingAutoSaveResults:
		s.AutoSaveResults = value == "1"
	case database.SettingNotificationLevel:
		s.NotificationLevel = value
	}
}
