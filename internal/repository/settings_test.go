package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/database"
)

func TestSeededSettingsAreListed(t *testing.T) {
	_, repo, _ := setupRepository(t)
	ctx := context.Background()

	settings, err := repo.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, len(database.DefaultSettings()))

	limit, err := repo.GetSetting(ctx, database.SettingOSINTRateLimit)
	require.NoError(t, err)
	require.Equal(t, "1000", limit.Value)
}

func TestUpsertSettingKeepsDescription(t *testing.T) {
	_, repo, _ := setupRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertSetting(ctx, database.SettingMaxBulkSize, "25", ""))
	setting, err := repo.GetSetting(ctx, database.SettingMaxBulkSize)
	require.NoError(t, err)
	require.Equal(t, "25", setting.Value)
	require.Equal(t, "Maximum number of items for bulk analysis", setting.Description)

	require.NoError(t, repo.UpsertSetting(ctx, database.SettingMaxBulkSize, "30", "Bulk cap"))
	setting, err = repo.GetSetting(ctx, database.SettingMaxBulkSize)
	require.NoError(t, err)
	require.Equal(t, "30", setting.Value)
	require.Equal(t, "Bulk cap", setting.Description)

	require.NoError(t, repo.UpsertSetting(ctx, "theme", "dark", ""))
	setting, err = repo.GetSetting(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "dark", setting.Value)

	require.Error(t, repo.UpsertSetting(ctx, " ", "x", ""))
	_, err = repo.GetSetting(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListSettingsHidesSystemRows(t *testing.T) {
	db, repo, _ := setupRepository(t)
	ctx := context.Background()

	_, err := database.EnsureKeyFingerprint(ctx, db, "abc")
	require.NoError(t, err)

	settings, err := repo.ListSettings(ctx)
	require.NoError(t, err)
	for _, setting := range settings {
		require.NotEqual(t, database.KeyFingerprintSetting, setting.Key)
	}
}
