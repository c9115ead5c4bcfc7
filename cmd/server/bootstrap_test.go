package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/app"
	"github.com/sentinelsoc/sentinel/internal/database"
	"github.com/sentinelsoc/sentinel/internal/models"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &app.Config{
		Server:   app.ServerConfig{Port: 8000},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "sentinel.sqlite")},
		Vault:    app.VaultConfig{KeyFile: filepath.Join(dir, ".encryption_key")},
		Auth: app.AuthConfig{
			Bootstrap: app.BootstrapConfig{Username: "admin", Email: "admin@siem.local", Password: "BootstrapPass1!"},
		},
		Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Enabled: false}},
	}
	_, err := app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{
		Driver:   " PostgreSQL ",
		Postgres: app.DBAuthConfig{Host: "db", Port: 5432, Database: "sentinel", Username: "siem", Password: " secret "},
	}}
	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db", dbCfg.Host)
	require.Equal(t, 5432, dbCfg.Port)
	require.Equal(t, "sentinel", dbCfg.Name)
	require.Equal(t, "siem", dbCfg.User)
	require.Equal(t, " secret ", dbCfg.Password)

	cfg.Database = app.DatabaseConfig{Driver: "mariadb", MySQL: app.DBAuthConfig{Host: "mysql", Port: 3306}}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql", dbCfg.Host)

	cfg.Database = app.DatabaseConfig{Path: "./x.sqlite"}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Equal(t, "./x.sqlite", dbCfg.Path)
	require.Empty(t, dbCfg.Host)
}

func TestBootstrapRuntimeSeedsAdminOnce(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	log := zap.NewNop()

	stack, err := bootstrapRuntime(ctx, cfg, log)
	require.NoError(t, err)
	require.NotNil(t, stack.Router)
	require.Nil(t, stack.Cleaner, "maintenance is disabled in this config")

	count, err := stack.Repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	var admin models.User
	require.NoError(t, stack.DB.Where("username = ?", "admin").First(&admin).Error)
	require.Equal(t, models.RoleAdmin, admin.Role)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"component":"vault"`)

	fingerprint, err := database.GetSystemSetting(ctx, stack.DB, database.KeyFingerprintSetting)
	require.NoError(t, err)
	require.NotEmpty(t, fingerprint)
	stack.Shutdown(ctx, log)

	// A second boot over the same files finds the admin and the same key.
	stack, err = bootstrapRuntime(ctx, cfg, log)
	require.NoError(t, err)
	count, err = stack.Repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	again, err := database.GetSystemSetting(ctx, stack.DB, database.KeyFingerprintSetting)
	require.NoError(t, err)
	require.Equal(t, fingerprint, again)
	stack.Shutdown(ctx, log)
}

func TestBootstrapRuntimeStartsMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance = app.MaintenanceConfig{Enabled: true, SessionSchedule: "@hourly", AuditSchedule: "@daily", AuditRetentionDays: 30}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, stack.Cleaner)
	stack.Shutdown(context.Background(), zap.NewNop())
}

func TestBootstrapRuntimeSnapshotsBesideDatabase(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	stack, err := bootstrapRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer stack.Shutdown(ctx, zap.NewNop())

	name, err := stack.Backups.Create(ctx)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(filepath.Dir(cfg.Database.Path), "backups", name))
}

func TestBackupDirectory(t *testing.T) {
	cfg := &app.Config{Database: app.DatabaseConfig{Path: filepath.Join("var", "lib", "sentinel.sqlite")}}
	require.Equal(t, filepath.Join("var", "lib", "backups"), backupDirectory(cfg))

	cfg.Maintenance.BackupDir = " /srv/snapshots "
	require.Equal(t, "/srv/snapshots", backupDirectory(cfg))

	cfg = &app.Config{Database: app.DatabaseConfig{Driver: "postgres"}}
	require.Equal(t, filepath.Join("data", "backups"), backupDirectory(cfg))
}

func TestBootstrapRuntimeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance = app.MaintenanceConfig{Enabled: true, SessionSchedule: "every tuesday", AuditSchedule: "@daily"}

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "maintenance")
}

func TestRunCreateUser(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	t.Setenv("SENTINEL_DATABASE_PATH", cfg.Database.Path)
	t.Setenv("SENTINEL_VAULT_KEY_FILE", cfg.Vault.KeyFile)
	t.Setenv("SENTINEL_NEW_USER_PASSWORD", "AnalystPass1!")

	var out bytes.Buffer
	err := run(context.Background(), []string{"create-user", "-config", dir, "-username", "alice", "-email", "alice@example.com"}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), `analyst user "alice"`)

	err = run(context.Background(), []string{"create-user", "-config", dir, "-username", "alice", "-email", "alice@example.com"}, &out)
	require.Error(t, err)
}
