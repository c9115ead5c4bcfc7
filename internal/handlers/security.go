package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/security"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// SecurityAuditHandler exposes the posture audit to administrators.
type SecurityAuditHandler struct {
	audit *security.AuditService
}

func NewSecurityAuditHandler(audit *security.AuditService) (*SecurityAuditHandler, error) {
	if audit == nil {
		return nil, errors.New("security audit handler: service is required")
	}
	return &SecurityAuditHandler{audit: audit}, nil
}

// GET /api/config/security-audit
func (h *SecurityAuditHandler) Run(c *gin.Context) {
	response.Success(c, http.StatusOK, h.audit.Run(requestContext(c)))
}
