// Package response renders the standard JSON envelope every HTTP
// handler in this service returns: {success, data?, message?, errors?}.
package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// Envelope is the standard API response shape.
type Envelope struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError describes one validation failure on a request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// OK sends a 200 with the payload in data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created sends a 201 with the payload in data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Error sends a bare message-only error at the given status.
func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Envelope{Success: false, Message: message})
}

// ValidationError sends a 400 carrying per-field validation failures.
func ValidationError(c *gin.Context, fields []FieldError) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Message: "validation failed",
		Errors:  fields,
	})
}

// AppErrorResponse renders an *apperr.AppError, attaching a
// Retry-After header when the error carries one.
func AppErrorResponse(c *gin.Context, err *apperr.AppError) {
	if err.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	c.JSON(err.Code, Envelope{Success: false, Message: err.Message})
}

// NoRoute renders a 404 for unmatched routes.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Envelope{Success: false, Message: "route not found"})
	}
}

// NoMethod renders a 405 for unsupported methods.
func NoMethod() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, Envelope{Success: false, Message: "method not allowed"})
	}
}

// HandleServiceError logs unexpected errors and renders the right
// envelope for either an *apperr.AppError or an opaque error. Returns
// true if it wrote a response.
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}
	if appErr, ok := apperr.As(err); ok {
		AppErrorResponse(c, appErr)
		return true
	}
	logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
	Error(c, http.StatusInternalServerError, fallbackMessage)
	return true
}
