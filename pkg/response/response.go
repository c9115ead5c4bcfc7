package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/sentinelsoc/sentinel/pkg/errors"
)

// Response defines the base API payload for endpoints that wrap their data.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	Service        string `json:"service,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// Success writes {"success": true, "data": data}.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// Message writes {"success": true, "message": msg}.
func Message(c *gin.Context, statusCode int, msg string) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: msg,
	})
}

// Fields writes a flat success object: the supplied fields plus "success": true.
func Fields(c *gin.Context, statusCode int, fields gin.H) {
	payload := gin.H{"success": true}
	for k, v := range fields {
		if k == "success" {
			continue
		}
		payload[k] = v
	}
	c.JSON(statusCode, payload)
}

// Error writes a JSON error response derived from an AppError. Internal details are never rendered.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Message: appErr.Message,
		Error: &ErrorInfo{
			Code:           appErr.Code,
			Message:        appErr.Message,
			Service:        appErr.Service,
			UpstreamStatus: appErr.UpstreamStatus,
		},
	})
}

// Abort writes the error response and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
