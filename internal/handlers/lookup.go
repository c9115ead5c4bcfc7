package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/lookup"
	"github.com/sentinelsoc/sentinel/internal/services"
	appErrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// ServiceHeader names the upstream service when the query parameter is absent.
const ServiceHeader = "X-Service"

// LookupHandler proxies threat-intelligence lookups for authenticated users.
type LookupHandler struct {
	broker   *lookup.Broker
	settings *services.SettingsService
}

func NewLookupHandler(broker *lookup.Broker, settings *services.SettingsService) (*LookupHandler, error) {
	if broker == nil {
		return nil, errors.New("lookup handler: broker is required")
	}
	if settings == nil {
		return nil, errors.New("lookup handler: settings service is required")
	}
	return &LookupHandler{broker: broker, settings: settings}, nil
}

type bulkLookupRequest struct {
	Service string   `json:"service" validate:"required"`
	Type    string   `json:"type" validate:"max=16"`
	Targets []string `json:"targets" validate:"required,min=1"`
}

// GET /api/lookup?service=&target=&type=
func (h *LookupHandler) Lookup(c *gin.Context) {
	service := strings.TrimSpace(c.Query("service"))
	if service == "" {
		service = strings.TrimSpace(c.GetHeader(ServiceHeader))
	}

	result, err := h.broker.Lookup(requestContext(c), lookup.Request{
		Service: service,
		Target:  c.Query("target"),
		Kind:    c.Query("type"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Fields(c, http.StatusOK, gin.H{
		"service": result.Service,
		"type":    result.Kind,
		"data":    result.Data,
	})
}

// POST /api/lookup/bulk
func (h *LookupHandler) Bulk(c *gin.Context) {
	var req bulkLookupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	settings, err := h.settings.Load(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(req.Targets) > settings.MaxBulkSize {
		response.Error(c, appErrors.NewValidation(fmt.Sprintf("Too many targets (maximum %d)", settings.MaxBulkSize)))
		return
	}

	results, err := h.broker.LookupBatch(ctx, req.Service, req.Type, req.Targets)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Fields(c, http.StatusOK, gin.H{
		"service": strings.ToLower(strings.TrimSpace(req.Service)),
		"results": results,
	})
}
