package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"appguard/internal/core"
)

// CompanionSource is the proximity surface the handler needs.
type CompanionSource interface {
	Paired() (core.PairedCompanion, bool)
	Trust() core.CompanionTrust
	Unpair(ctx context.Context) error
}

// CompanionHandler reports and manages the paired wearable
type CompanionHandler struct {
	detector CompanionSource
	logger   *slog.Logger
}

// NewCompanionHandler creates a new companion handler
func NewCompanionHandler(detector CompanionSource, logger *slog.Logger) *CompanionHandler {
	return &CompanionHandler{
		detector: detector,
		logger:   logger,
	}
}

// GetCompanion returns pairing and trust state
// GET /companion
func (h *CompanionHandler) GetCompanion(c *gin.Context) {
	companion, paired := h.detector.Paired()
	if !paired {
		c.JSON(http.StatusOK, gin.H{"paired": false})
		return
	}
	trust := h.detector.Trust()
	c.JSON(http.StatusOK, gin.H{
		"paired":    true,
		"name":      companion.Name,
		"address":   companion.Address,
		"paired_at": companion.PairedAt.Format("2006-01-02T15:04:05Z07:00"),
		"in_range":  trust.InRange,
		"on_body":   trust.OnBody.String(),
	})
}

// Unpair forgets the paired wearable
// POST /companion/unpair
func (h *CompanionHandler) Unpair(c *gin.Context) {
	if err := h.detector.Unpair(c.Request.Context()); err != nil {
		h.logger.Error("Failed to unpair companion",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to unpair companion",
			"code":  "INTERNAL_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paired": false})
}
