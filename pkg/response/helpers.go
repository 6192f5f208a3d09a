package response

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/validation"
)

// ParseUUIDParam parses a UUID from a URL path parameter, writing an
// error response and returning false on failure.
func ParseUUIDParam(c *gin.Context, paramName, displayName string) (uuid.UUID, bool) {
	paramValue := c.Param(paramName)
	if paramValue == "" {
		Error(c, http.StatusBadRequest, displayName+" is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(paramValue)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid "+displayName)
		return uuid.Nil, false
	}
	return id, true
}

// ParseUUIDQuery parses an optional or required UUID query parameter.
func ParseUUIDQuery(c *gin.Context, paramName, displayName string, required bool) (uuid.UUID, bool) {
	paramValue := c.Query(paramName)
	if paramValue == "" {
		if required {
			Error(c, http.StatusBadRequest, displayName+" is required")
			return uuid.Nil, false
		}
		return uuid.Nil, true
	}
	id, err := uuid.Parse(paramValue)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid "+displayName)
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds the JSON request body, writing an error response on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// RenderValidationError renders a *validation.ValidationError as the
// envelope's per-field `errors` array, or falls back to a bare message
// for any other error shape.
func RenderValidationError(c *gin.Context, err error) {
	if verr, ok := err.(*validation.ValidationError); ok {
		fields := make([]FieldError, 0, len(verr.Errors))
		for field, msg := range verr.Errors {
			fields = append(fields, FieldError{Field: field, Message: msg})
		}
		ValidationError(c, fields)
		return
	}
	Error(c, http.StatusBadRequest, err.Error())
}

// BindAndValidate parses the JSON body into obj, then validates it
// against obj's `validate` struct tags (pkg/validation, edge validation
// per this service's event/request payload contract). Writes the
// appropriate error envelope and returns false on either failure.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return false
	}
	if err := validation.ValidateStruct(obj); err != nil {
		RenderValidationError(c, err)
		return false
	}
	return true
}

// BindQuery binds query parameters, writing an error response on failure.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// ValidateNotEmpty writes a 400 and returns false if value is empty.
func ValidateNotEmpty(c *gin.Context, value, fieldName string) bool {
	if value == "" {
		Error(c, http.StatusBadRequest, fieldName+" is required")
		return false
	}
	return true
}

// ValidateInRange writes a 400 and returns false if value falls outside [min, max].
func ValidateInRange(c *gin.Context, value, min, max float64, fieldName string) bool {
	if value < min || value > max {
		Error(c, http.StatusBadRequest, fieldName+" must be between "+
			strconv.FormatFloat(min, 'f', -1, 64)+" and "+strconv.FormatFloat(max, 'f', -1, 64))
		return false
	}
	return true
}
