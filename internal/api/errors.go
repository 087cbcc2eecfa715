package api

import (
	"errors"
	"net/http"

	"studyhub/portal/internal/service"

	"github.com/gin-gonic/gin"
)

// abortWithError writes the message+error pair every failure response carries.
func abortWithError(c *gin.Context, code int, message string, err error) {
	detail := message
	if err != nil {
		detail = err.Error()
	}
	c.AbortWithStatusJSON(code, gin.H{"message": message, "error": detail})
}

// respondServiceError maps the service error taxonomy to HTTP statuses.
func respondServiceError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		abortWithError(c, http.StatusBadRequest, message, err)
	case errors.Is(err, service.ErrNotFound):
		abortWithError(c, http.StatusNotFound, message, err)
	case errors.Is(err, service.ErrUnauthorized):
		abortWithError(c, http.StatusUnauthorized, message, err)
	case errors.Is(err, service.ErrConflict):
		abortWithError(c, http.StatusConflict, message, err)
	default:
		// Upstream storage failures and unexpected errors surface as 500.
		abortWithError(c, http.StatusInternalServerError, message, err)
	}
}
