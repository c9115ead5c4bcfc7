package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsoc/sentinel/internal/auditctx"
	"github.com/sentinelsoc/sentinel/internal/auth"
	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/internal/repository"
	"github.com/sentinelsoc/sentinel/pkg/errors"
)

const testCookie = "siem_session"

type fakeValidator struct {
	sessions map[string]*repository.UserView
	calls    int
}

func (f *fakeValidator) Authenticate(_ context.Context, token string) (*repository.UserView, error) {
	f.calls++
	user, ok := f.sessions[token]
	if !ok {
		return nil, errors.ErrUnauthorized
	}
	return user, nil
}

func newSessionRouter(v SessionValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/secure", SessionAuth(v, testCookie), func(c *gin.Context) {
		fromCtx, ok := auth.UserFromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		actor, _ := auditctx.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetString(CtxUserIDKey),
			"username": fromCtx.Username,
			"actor":    actor.Username,
		})
	})
	return r
}

func TestSessionAuthTokenSources(t *testing.T) {
	v := &fakeValidator{sessions: map[string]*repository.UserView{
		"good": {ID: "user-1", Username: "alice", Role: models.RoleAnalyst},
	}}
	r := newSessionRouter(v)

	cases := map[string]func(*http.Request){
		"cookie": func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: testCookie, Value: "good"})
		},
		"bearer": func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer good")
		},
		"header": func(req *http.Request) {
			req.Header.Set(SessionHeader, "good")
		},
	}

	for name, decorate := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			decorate(req)
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			var payload map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
			require.Equal(t, "user-1", payload["user_id"])
			require.Equal(t, "alice", payload["username"])
			require.Equal(t, "alice", payload["actor"])
		})
	}
}

func TestSessionAuthRejects(t *testing.T) {
	v := &fakeValidator{sessions: map[string]*repository.UserView{}}
	r := newSessionRouter(v)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, v.calls)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "stale"})
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, 1, v.calls)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, false, payload["success"])
}

func TestSessionTokensPreferCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: testCookie, Value: "from-cookie"})
	c.Request.Header.Set("Authorization", "Bearer from-bearer")

	require.Equal(t, []string{"from-cookie", "from-bearer"}, SessionTokens(c, testCookie))

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Basic abc")
	require.Empty(t, SessionTokens(c, testCookie))
}

func TestSessionAuthFallsBackPastStaleCookie(t *testing.T) {
	v := &fakeValidator{sessions: map[string]*repository.UserView{
		"fresh": {ID: "user-1", Username: "alice", Role: models.RoleAnalyst},
	}}
	r := newSessionRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "expired"})
	req.Header.Set("Authorization", "Bearer fresh")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 2, v.calls)
}

type brokenValidator struct{ calls int }

func (b *brokenValidator) Authenticate(context.Context, string) (*repository.UserView, error) {
	b.calls++
	return nil, errors.ErrInternalServer
}

func TestSessionAuthStopsOnStoreFailure(t *testing.T) {
	v := &brokenValidator{}
	r := newSessionRouter(v)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "a"})
	req.Header.Set(SessionHeader, "b")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, v.calls)
}

func TestSessionTokensOrderAndDedupe(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: testCookie, Value: "one"})
	c.Request.Header.Set("Authorization", "Bearer two")
	c.Request.Header.Set(SessionHeader, "one")

	require.Equal(t, []string{"one", "two"}, SessionTokens(c, testCookie))
}
