package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/sentinelsoc/sentinel/internal/auth"
	"github.com/sentinelsoc/sentinel/internal/middleware"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// CookieOptions describes the session cookie issued on login.
type CookieOptions struct {
	Name   string
	Domain string
	Secure bool
	TTL    time.Duration
}

// AuthHandler manages login, logout, session checks and the auth log.
type AuthHandler struct {
	auth   *iauth.Service
	cookie CookieOptions
}

func NewAuthHandler(svc *iauth.Service, cookie CookieOptions) (*AuthHandler, error) {
	if svc == nil {
		return nil, errors.New("auth handler: service is required")
	}
	if cookie.Name == "" {
		return nil, errors.New("auth handler: cookie name is required")
	}
	return &AuthHandler{auth: svc, cookie: cookie}, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=256"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), iauth.Credentials{
		Identifier: req.Username,
		Password:   req.Password,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setCookie(c, result.Token, int(h.cookie.TTL.Seconds()))
	response.Fields(c, http.StatusOK, gin.H{
		"message":    "Login successful",
		"user":       result.User,
		"expires_at": result.ExpiresAt,
	})
}

// POST /api/auth/logout ends every session the request presents.
func (h *AuthHandler) Logout(c *gin.Context) {
	meta := iauth.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	for _, token := range middleware.SessionTokens(c, h.cookie.Name) {
		h.auth.Logout(requestContext(c), token, meta)
	}

	h.setCookie(c, "", -1)
	response.Fields(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// GET /api/auth/check
func (h *AuthHandler) Check(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}
	response.Fields(c, http.StatusOK, gin.H{"user": user})
}

// GET /api/auth/logs?limit=
func (h *AuthHandler) Logs(c *gin.Context) {
	logs, err := h.auth.AuthLogs(requestContext(c), intQuery(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Fields(c, http.StatusOK, gin.H{"logs": logs})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
