package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-status-hub/internal/application/gateway"
	"go-status-hub/internal/infrastructure/logger"
	"go-status-hub/internal/infrastructure/store"
)

// statusFor maps a gateway or store error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeGatewayError renders err as {"error": ...}. Internal errors are
// logged and never echoed to the client.
func writeGatewayError(c *gin.Context, log logger.Logger, entity string, err error) {
	code := statusFor(err)
	var msg string
	switch code {
	case http.StatusBadRequest:
		msg = err.Error()
	case http.StatusUnauthorized:
		msg = "Unauthorized"
	case http.StatusNotFound:
		msg = entity + " not found"
	case http.StatusGatewayTimeout:
		log.Warnf("%s request timed out: %v", entity, err)
		msg = "Record store timed out"
	default:
		log.Errorf("%s request failed: %v", entity, err)
		msg = "Internal Server Error"
	}
	c.JSON(code, gin.H{"error": msg})
}
