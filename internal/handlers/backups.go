package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/services"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// BackupHandler snapshots and rotates the configuration database.
type BackupHandler struct {
	backups *services.BackupService
}

func NewBackupHandler(backups *services.BackupService) (*BackupHandler, error) {
	if backups == nil {
		return nil, errors.New("backup handler: service is required")
	}
	return &BackupHandler{backups: backups}, nil
}

// POST /api/config/backup
func (h *BackupHandler) Create(c *gin.Context) {
	name, err := h.backups.Create(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Fields(c, http.StatusOK, gin.H{
		"message":     "Backup created successfully",
		"backup_path": name,
	})
}

// DELETE /api/config/cleanup
func (h *BackupHandler) Cleanup(c *gin.Context) {
	removed, err := h.backups.Cleanup(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Fields(c, http.StatusOK, gin.H{
		"message": "Cleanup completed",
		"removed": removed,
	})
}
