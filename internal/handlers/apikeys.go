package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/services"
	appErrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// APIKeyHandler exposes the upstream credential store to administrators.
// No response ever carries more of a key than its preview.
type APIKeyHandler struct {
	keys *services.APIKeyService
}

func NewAPIKeyHandler(keys *services.APIKeyService) (*APIKeyHandler, error) {
	if keys == nil {
		return nil, errors.New("api key handler: service is required")
	}
	return &APIKeyHandler{keys: keys}, nil
}

type saveKeyRequest struct {
	Service string `json:"service" validate:"required,service"`
	APIKey  string `json:"api_key" validate:"required,max=512"`
}

type toggleKeyRequest struct {
	Service  string `json:"service" validate:"required,service"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

// GET /api/config/apis
func (h *APIKeyHandler) List(c *gin.Context) {
	statuses, err := h.keys.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, statuses)
}

// GET /api/config/api?service=
func (h *APIKeyHandler) Get(c *gin.Context) {
	service, ok := serviceQuery(c)
	if !ok {
		return
	}
	desc, err := h.keys.Describe(requestContext(c), service)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, desc)
}

// POST /api/config/api
func (h *APIKeyHandler) Save(c *gin.Context) {
	var req saveKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.keys.Save(requestContext(c), req.Service, req.APIKey); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "API key saved")
}

// PUT /api/config/api/toggle
func (h *APIKeyHandler) Toggle(c *gin.Context) {
	var req toggleKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.keys.SetActive(requestContext(c), req.Service, *req.IsActive); err != nil {
		response.Error(c, err)
		return
	}
	msg := "API key disabled"
	if *req.IsActive {
		msg = "API key enabled"
	}
	response.Message(c, http.StatusOK, msg)
}

// DELETE /api/config/api?service=
func (h *APIKeyHandler) Delete(c *gin.Context) {
	service, ok := serviceQuery(c)
	if !ok {
		return
	}
	if err := h.keys.Delete(requestContext(c), service); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "API key deleted")
}

// GET /api/config/stats
func (h *APIKeyHandler) Stats(c *gin.Context) {
	stats, err := h.keys.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

func serviceQuery(c *gin.Context) (string, bool) {
	service := strings.TrimSpace(c.Query("service"))
	if service == "" {
		response.Error(c, appErrors.NewBadRequest("service is required"))
		return "", false
	}
	return service, true
}
