package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/services"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// SettingsHandler manages runtime settings.
type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) (*SettingsHandler, error) {
	if settings == nil {
		return nil, errors.New("settings handler: service is required")
	}
	return &SettingsHandler{settings: settings}, nil
}

type setSettingRequest struct {
	Key         string `json:"key" validate:"required,max=100"`
	Value       string `json:"value" validate:"max=4096"`
	Description string `json:"description" validate:"max=255"`
}

// GET /api/config/settings
func (h *SettingsHandler) List(c *gin.Context) {
	rows, err := h.settings.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// POST /api/config/setting
func (h *SettingsHandler) Set(c *gin.Context) {
	var req setSettingRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.settings.Set(requestContext(c), req.Key, req.Value, req.Description); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Setting saved")
}
