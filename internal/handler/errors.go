package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/internal/errs"
	"go.uber.org/zap"
)

// maxIDLength bounds astrologer, user and call ids accepted from clients.
const maxIDLength = 100

func validID(id string) bool { return len(id) <= maxIDLength }

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// respondError maps domain errors to HTTP codes. Anything unknown is a 500.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrCallNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Call not found"})
	case errors.Is(err, errs.ErrCallConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Call was modified concurrently, reload and retry"})
	case errors.Is(err, errs.ErrInvalidTransition),
		errors.Is(err, errs.ErrInvalidStatus),
		errors.Is(err, errs.ErrInvalidCallType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
