package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cartengine/internal/domain"
	"cartengine/internal/service/voucher"
)

// writeError maps domain failures onto HTTP statuses. Version conflicts
// surface as 409 with the classification payload so callers can decide
// between an automatic retry and a manual resolution.
func writeError(c *gin.Context, err error) {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "conflict": conflict.ToMap()})
		return
	}

	var invalidCond *domain.InvalidCartConditionError
	if errors.As(err, &invalidCond) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidCond.Error()})
		return
	}
	var invalidItem *domain.InvalidCartItemError
	if errors.As(err, &invalidItem) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidItem.Error()})
		return
	}
	var limit *domain.LimitExceededError
	if errors.As(err, &limit) {
		c.JSON(http.StatusBadRequest, gin.H{"error": limit.Error()})
		return
	}

	switch {
	case errors.Is(err, voucher.ErrInvalidCode),
		errors.Is(err, voucher.ErrNotYetActive),
		errors.Is(err, voucher.ErrExpired),
		errors.Is(err, voucher.ErrUsageLimit),
		errors.Is(err, voucher.ErrBelowMinimum),
		errors.Is(err, voucher.ErrAlreadyApplied):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
