package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/ptahnest/ptahnest/pkg/errors"
)

// ErrorBody is the uniform error payload sent to clients.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Success writes a JSON success response. The payload fields are merged with
// the success flag at the top level, matching the public API contract.
func Success(c *gin.Context, statusCode int, payload gin.H) {
	body := gin.H{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(statusCode, body)
}

// Error writes a uniform JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, ErrorBody{
		Success: false,
		Message: appErr.Message,
		Code:    appErr.Code,
	})
}
