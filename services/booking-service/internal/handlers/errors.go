package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leis4/parkshare-ru-part1/services/booking-service/internal/domain"
)

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		ge *domain.GatewayError
		ae *domain.AuthenticityError
	)
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "slot_overlapped"
	case errors.Is(err, domain.ErrState):
		status, code = http.StatusConflict, "illegal_state"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.As(err, &ae):
		status, code = http.StatusUnauthorized, "not_authentic"
	case errors.As(err, &ge) && ge.Retryable:
		status, code = http.StatusServiceUnavailable, "gateway_unavailable"
	case errors.As(err, &ge):
		status, code = http.StatusBadGateway, "gateway_rejected"
	}
	if status == http.StatusInternalServerError {
		log.Printf("[booking] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": code})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": err.Error()})
}

// actorOf reads the caller set by middlewares.JWTAuth.
func actorOf(c *gin.Context) domain.Actor {
	return domain.Actor{UserID: c.GetString("sub"), Role: c.GetString("role")}
}
