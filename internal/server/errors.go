package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sofatutor/imagegen-proxy/internal/upstream"
)

const (
	errTypeUnauthorized     = "unauthorized"
	errTypeNotFound         = "not_found"
	errTypeInvalidRequest   = "invalid_request_error"
	errTypeUpstream         = "upstream_error"
	errTypeGenerationFailed = "generation_failed"
	errTypeStorage          = "storage_error"
)

// ErrorBody is the uniform error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code,omitempty"`
}

func writeError(c *gin.Context, status int, message, errType string, code int) {
	c.AbortWithStatusJSON(status, ErrorBody{Error: ErrorDetail{Message: message, Type: errType, Code: code}})
}

// writeValidationError reports a malformed request. Validation failures share
// the 500 status of generation failures so existing clients keep working.
func writeValidationError(c *gin.Context, message string) {
	writeError(c, http.StatusInternalServerError, message, errTypeInvalidRequest, 0)
}

// writeGenerationError maps a generation failure to the error envelope.
func writeGenerationError(c *gin.Context, err error) {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		writeError(c, http.StatusInternalServerError, upErr.Message, errTypeUpstream, upErr.Code)
		return
	}
	writeError(c, http.StatusInternalServerError, err.Error(), errTypeGenerationFailed, 0)
}

// authMiddleware requires "Authorization: Bearer <master key>" unless the
// master key is left at the open-access placeholder.
func (s *Server) authMiddleware() gin.HandlerFunc {
	expected := []byte("Bearer " + s.config.MasterKey)
	return func(c *gin.Context) {
		if s.config.OpenAccess() {
			c.Next()
			return
		}
		got := []byte(c.GetHeader("Authorization"))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			writeError(c, http.StatusUnauthorized, "Unauthorized", errTypeUnauthorized, 0)
			return
		}
		c.Next()
	}
}
