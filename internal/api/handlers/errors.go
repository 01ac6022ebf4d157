// Package handlers contains the gin handlers of the HTTP API.
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"payout-ledger/internal/ledger"
	"payout-ledger/internal/service"
)

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, ledger.ErrZeroDelta):
		return http.StatusBadRequest
	case service.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInsufficientBalance), errors.Is(err, service.ErrInvalidInviteCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrAlreadyProcessed),
		errors.Is(err, service.ErrAlreadyCollected),
		errors.Is(err, service.ErrPurchaseNotActive),
		errors.Is(err, service.ErrUsernameTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as JSON. Store and unit failures are logged and
// reported without detail.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// pathID parses a positive int64 path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter clamped to [lo, hi].
func queryInt(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	if n > hi {
		n = hi
	}
	return n, true
}
