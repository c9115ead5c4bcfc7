package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sentinelsoc/sentinel/internal/api"
	"github.com/sentinelsoc/sentinel/internal/app"
	iauth "github.com/sentinelsoc/sentinel/internal/auth"
	"github.com/sentinelsoc/sentinel/internal/database"
	sharedtestutil "github.com/sentinelsoc/sentinel/internal/database/testutil"
	"github.com/sentinelsoc/sentinel/internal/lookup"
	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/internal/services"
	"github.com/sentinelsoc/sentinel/internal/vault"
	"github.com/sentinelsoc/sentinel/pkg/crypto"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// CookieName is the session cookie used by the test router.
const CookieName = "siem_session"

var fastParams = crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32}

// Upstream is a fake threat-intelligence API that every provider points at.
type Upstream struct {
	*httptest.Server

	calls   atomic.Int32
	mu      sync.Mutex
	status  int
	body    string
	lastURL string
}

// Calls reports how many requests reached the fake.
func (u *Upstream) Calls() int {
	return int(u.calls.Load())
}

// Respond sets the status and body of subsequent responses.
func (u *Upstream) Respond(status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status = status
	u.body = body
}

// LastURL returns the request URI of the latest call, including the query string.
func (u *Upstream) LastURL() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastURL
}

func newUpstream(t *testing.T) *Upstream {
	t.Helper()
	u := &Upstream{status: http.StatusOK, body: `{"data":{"ipAddress":"8.8.8.8","abuseConfidenceScore":0}}`}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		u.mu.Lock()
		u.lastURL = r.URL.RequestURI()
		status, body := u.status, u.body
		u.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)
	return u
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Repo     *repository.Repository
	Settings *services.SettingsService
	Broker   *lookup.Broker
	Upstream *Upstream
	// BackupDir receives snapshots written through /api/config/backup.
	BackupDir string
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	key, err := vault.GenerateMasterKey()
	require.NoError(t, err)
	cipher, err := vault.NewCrypto(key, vault.WithArgon2Parameters(fastParams))
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			Cookie: app.CookieConfig{Name: CookieName, Secure: true},
		},
		Server: app.ServerConfig{
			LoginRateLimit: app.RateLimitConfig{Enabled: false},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	repoCfg := cfg.Auth.RepositoryConfig()
	repoCfg.PasswordParams = fastParams
	repo, err := repository.New(db, cipher, repoCfg)
	require.NoError(t, err)

	authSvc, err := iauth.NewService(repo, iauth.WithPasswordParams(fastParams))
	require.NoError(t, err)
	userSvc, err := services.NewUserService(repo)
	require.NoError(t, err)
	keySvc, err := services.NewAPIKeyService(repo, lookup.ServiceNames(),
		services.WithDatabaseSize(func(ctx context.Context) (int64, error) {
			return database.Size(ctx, db)
		}))
	require.NoError(t, err)

	backupDir := t.TempDir()
	snapshots, err := database.NewBackups(db, database.BackupConfig{Dir: backupDir})
	require.NoError(t, err)
	backupSvc, err := services.NewBackupService(snapshots)
	require.NoError(t, err)
	settingsSvc, err := services.NewSettingsService(repo)
	require.NoError(t, err)

	upstream := newUpstream(t)
	bases := make(map[string]string)
	for _, service := range lookup.ServiceNames() {
		bases[service] = upstream.URL
	}
	broker, err := lookup.NewBroker(repo, lookup.Config{BaseURLs: bases, Timeout: 5 * time.Second},
		lookup.WithHTTPClient(upstream.Client()))
	require.NoError(t, err)
	settingsSvc.OnChange(func(s services.Settings) {
		broker.SetMinInterval(s.OSINTInterval())
	})

	router, err := api.NewRouter(api.Deps{
		DB:         db,
		Config:     cfg,
		Auth:       authSvc,
		Users:      userSvc,
		Keys:       keySvc,
		Settings:   settingsSvc,
		Backups:    backupSvc,
		Broker:     broker,
		SessionTTL: repo.SessionTTL(),
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		Repo:      repo,
		Settings:  settingsSvc,
		Broker:    broker,
		Upstream:  upstream,
		BackupDir: backupDir,
	}
}

// CreateUser inserts an active user with the given role.
func (e *Env) CreateUser(username, password string, role models.Role) *models.User {
	e.T.Helper()

	user, err := e.Repo.CreateUser(context.Background(), repository.NewUser{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		Role:     role,
	})
	require.NoError(e.T, err)
	return user
}

// UserPayload captures the user projection returned from auth endpoints.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// LoginResult bundles the outcome of POST /api/auth/login.
type LoginResult struct {
	Cookie *http.Cookie
	User   UserPayload
}

// Token returns the session token carried by the cookie.
func (l LoginResult) Token() string {
	if l.Cookie == nil {
		return ""
	}
	return l.Cookie.Value
}

// Login authenticates and returns the issued session cookie.
func (e *Env) Login(username, password string) LoginResult {
	e.T.Helper()

	w := e.TryLogin(username, password)
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	body := DecodeBody(e.T, w)
	var user UserPayload
	require.NoError(e.T, json.Unmarshal(body["user"], &user))
	require.Equal(e.T, username, user.Username)

	cookie := FindCookie(w, CookieName)
	require.NotNil(e.T, cookie, "session cookie missing")
	require.NotEmpty(e.T, cookie.Value)

	return LoginResult{Cookie: cookie, User: user}
}

// TryLogin posts credentials and returns the raw response.
func (e *Env) TryLogin(username, password string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeBody parses a flat response object into its top-level fields.
func DecodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// FindCookie returns the named cookie set by the response, if any.
func FindCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Request executes an HTTP request against the test router, sending token as a bearer credential.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	req := e.newRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.Do(req)
}

// RequestWithCookie executes a request authenticated by the session cookie, as a browser would.
func (e *Env) RequestWithCookie(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	req := e.newRequest(method, path, body)
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return e.Do(req)
}

// Do serves a prepared request.
func (e *Env) Do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

func (e *Env) newRequest(method, path string, body any) *http.Request {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}
