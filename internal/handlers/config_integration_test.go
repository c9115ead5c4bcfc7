package handlers_test

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/handlers/testutil"
	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/internal/services"
)

func adminSession(t *testing.T, env *testutil.Env) testutil.LoginResult {
	t.Helper()
	env.CreateUser("root", "AdminPass123!", models.RoleAdmin)
	return env.Login("root", "AdminPass123!")
}

func TestAPIKeyLifecycleNeverEchoesKey(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := adminSession(t, env)
	key := strings.Repeat("A", 60)

	w := env.RequestWithCookie(http.MethodPost, "/api/config/api", map[string]string{
		"service": "abuseipdb",
		"api_key": key,
	}, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "API key saved", testutil.DecodeResponse(t, w).Message)
	require.NotContains(t, w.Body.String(), key)

	w = env.RequestWithCookie(http.MethodGet, "/api/config/apis", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), key)
	var statuses []struct {
		Service  string `json:"service_name"`
		HasKey   bool   `json:"has_key"`
		IsActive bool   `json:"is_active"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &statuses)
	found := false
	for _, s := range statuses {
		if s.Service == "abuseipdb" {
			found = true
			require.True(t, s.HasKey)
			require.True(t, s.IsActive)
		}
	}
	require.True(t, found, w.Body.String())

	w = env.RequestWithCookie(http.MethodGet, "/api/config/api?service=abuseipdb", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), key)
	var desc services.KeyDescription
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &desc)
	require.True(t, desc.HasKey)
	require.NotNil(t, desc.KeyPreview)
	require.Equal(t, "AAAAAAAA...", *desc.KeyPreview)

	w = env.RequestWithCookie(http.MethodGet, "/api/config/stats", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats services.KeyStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &stats)
	require.Equal(t, 1, stats.ActiveAPIs)
	require.NotNil(t, stats.LastUpdate)
	require.Positive(t, stats.DBSize)

	// The stored row holds ciphertext only.
	var cred models.APICredential
	require.NoError(t, env.DB.Where("service_name = ?", "abuseipdb").First(&cred).Error)
	require.NotContains(t, cred.Ciphertext, key)

	w = env.RequestWithCookie(http.MethodPut, "/api/config/api/toggle", map[string]any{
		"service":   "abuseipdb",
		"is_active": false,
	}, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "API key disabled", testutil.DecodeResponse(t, w).Message)

	w = env.RequestWithCookie(http.MethodDelete, "/api/config/api?service=abuseipdb", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.RequestWithCookie(http.MethodGet, "/api/config/api?service=abuseipdb", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &desc)
	require.False(t, desc.HasKey)
	require.Nil(t, desc.KeyPreview)
}

func TestSaveAPIKeyValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := adminSession(t, env)

	cases := map[string]map[string]string{
		"unknown service": {"service": "greynoise", "api_key": strings.Repeat("k", 60)},
		"missing key":     {"service": "shodan"},
		"short key":       {"service": "abuseipdb", "api_key": "too-short"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.RequestWithCookie(http.MethodPost, "/api/config/api", body, admin.Cookie)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			require.False(t, testutil.DecodeResponse(t, w).Success)
		})
	}

	w := env.RequestWithCookie(http.MethodDelete, "/api/config/api", nil, admin.Cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigRoutesRequireAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("alice", "Secret123!", models.RoleAnalyst)
	analyst := env.Login("alice", "Secret123!")

	for _, path := range []string{"/api/config/apis", "/api/config/settings", "/api/config/stats", "/api/users"} {
		w := env.RequestWithCookie(http.MethodGet, path, nil, analyst.Cookie)
		require.Equal(t, http.StatusForbidden, w.Code, path)

		w = env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := env.RequestWithCookie(http.MethodPost, "/api/config/backup", nil, analyst.Cookie)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = env.RequestWithCookie(http.MethodDelete, "/api/config/cleanup", nil, analyst.Cookie)
	require.Equal(t, http.StatusForbidden, w.Code)

	entries, err := os.ReadDir(env.BackupDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestBackupAndCleanupOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := adminSession(t, env)

	old := time.Now().Add(-48 * time.Hour)
	for i := 0; i < 11; i++ {
		path := filepath.Join(env.BackupDir, fmt.Sprintf("siem_config_2020-01-01_00-00-%02d.db", i))
		require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))
		modTime := old.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}

	w := env.RequestWithCookie(http.MethodPost, "/api/config/backup", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := testutil.DecodeBody(t, w)
	require.JSONEq(t, `true`, string(body["success"]))
	require.JSONEq(t, `"Backup created successfully"`, string(body["message"]))
	var name string
	testutil.DecodeInto(t, body["backup_path"], &name)
	require.True(t, strings.HasPrefix(name, "siem_config_"), name)
	require.Equal(t, name, filepath.Base(name), "only the file name is returned")
	require.FileExists(t, filepath.Join(env.BackupDir, name))

	w = env.RequestWithCookie(http.MethodDelete, "/api/config/cleanup", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = testutil.DecodeBody(t, w)
	require.JSONEq(t, `"Cleanup completed"`, string(body["message"]))
	require.JSONEq(t, `2`, string(body["removed"]))

	entries, err := os.ReadDir(env.BackupDir)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	require.FileExists(t, filepath.Join(env.BackupDir, name))
	require.NoFileExists(t, filepath.Join(env.BackupDir, "siem_config_2020-01-01_00-00-00.db"))
	require.NoFileExists(t, filepath.Join(env.BackupDir, "siem_config_2020-01-01_00-00-01.db"))
}

func TestSettingsOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := adminSession(t, env)

	w := env.RequestWithCookie(http.MethodGet, "/api/config/settings", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rows []models.Setting
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rows)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		require.False(t, strings.HasPrefix(row.Key, "system."), row.Key)
	}

	w = env.RequestWithCookie(http.MethodPost, "/api/config/setting", map[string]string{
		"key":   "max_bulk_size",
		"value": "25",
	}, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Setting saved", testutil.DecodeResponse(t, w).Message)

	loaded, err := env.Settings.Load(t.Context())
	require.NoError(t, err)
	require.Equal(t, 25, loaded.MaxBulkSize)

	w = env.RequestWithCookie(http.MethodPost, "/api/config/setting", map[string]string{
		"key":   "max_bulk_size",
		"value": "lots",
	}, admin.Cookie)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.RequestWithCookie(http.MethodPost, "/api/config/setting", map[string]string{
		"key":   "system.vault_fingerprint",
		"value": "x",
	}, admin.Cookie)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestUserManagementOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := adminSession(t, env)

	body := map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "Secret123!",
		"role":     "viewer",
	}
	w := env.RequestWithCookie(http.MethodPost, "/api/users", body, admin.Cookie)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), "Secret123!")

	w = env.RequestWithCookie(http.MethodPost, "/api/users", body, admin.Cookie)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	body["username"] = "carol"
	body["email"] = "carol@example.com"
	body["role"] = "superuser"
	w = env.RequestWithCookie(http.MethodPost, "/api/users", body, admin.Cookie)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.RequestWithCookie(http.MethodGet, "/api/users", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), "password_hash")
	var users []testutil.UserPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &users)
	require.Len(t, users, 2)

	w = env.RequestWithCookie(http.MethodPut, "/api/users/"+admin.User.ID+"/active", map[string]bool{"is_active": false}, admin.Cookie)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	require.Equal(t, "USER_SELF_DEACTIVATION", testutil.DecodeResponse(t, w).Error.Code)

	w = env.RequestWithCookie(http.MethodPut, "/api/users/does-not-exist/active", map[string]bool{"is_active": false}, admin.Cookie)
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestSecurityAuditOverHTTP(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := adminSession(t, env)

	w := env.RequestWithCookie(http.MethodGet, "/api/config/security-audit", nil, admin.Cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result struct {
		Checks []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	statuses := map[string]string{}
	for _, check := range result.Checks {
		statuses[check.ID] = check.Status
	}
	require.Equal(t, "pass", statuses["active_admin_present"])
	require.Equal(t, "pass", statuses["session_cookie_secure"])
	require.Equal(t, "warn", statuses["login_rate_limit"])
}
