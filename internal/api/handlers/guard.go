package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"appguard/internal/auth"
	"appguard/internal/guard"
)

// GuardHandler exposes the coordinator's control surface: status, the
// backup-secret unlock, biometric retry, and the panic override.
type GuardHandler struct {
	control guard.Control
	logger  *slog.Logger
}

// NewGuardHandler creates a new guard handler
func NewGuardHandler(control guard.Control, logger *slog.Logger) *GuardHandler {
	return &GuardHandler{
		control: control,
		logger:  logger,
	}
}

// GetStatus returns the protection status snapshot
// GET /status
func (h *GuardHandler) GetStatus(c *gin.Context) {
	status := h.control.Status()
	response := gin.H{
		"protection_enabled": status.ProtectionEnabled,
		"overlay_phase":      status.OverlayPhase,
		"sessions":           status.Sessions,
		"companion_in_range": status.CompanionInRange,
		"companion_on_body":  status.CompanionOnBody,
	}
	if status.OverlayTarget != "" {
		response["overlay_target"] = status.OverlayTarget
		response["overlay_raised_at"] = status.OverlayRaisedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	c.JSON(http.StatusOK, response)
}

// Unlock verifies the backup secret against the current overlay target
// POST /unlock
func (h *GuardHandler) Unlock(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
			"code":  "INVALID_REQUEST",
		})
		return
	}

	err := h.control.SubmitSecret(c.Request.Context(), req.Secret)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"unlocked": true})
	case errors.Is(err, guard.ErrNothingLocked):
		c.JSON(http.StatusConflict, gin.H{
			"error": "No application is currently locked",
			"code":  "NOTHING_LOCKED",
		})
	case errors.Is(err, guard.ErrWrongSecret):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Wrong secret",
			"code":  "WRONG_SECRET",
		})
	case errors.Is(err, auth.ErrNoSecret):
		c.JSON(http.StatusConflict, gin.H{
			"error": "No backup secret is configured",
			"code":  "NO_SECRET_SET",
		})
	default:
		h.logger.Error("Failed to verify secret",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to verify secret",
			"code":  "INTERNAL_ERROR",
		})
	}
}

// Retry re-runs the biometric prompt for the current overlay target
// POST /retry
func (h *GuardHandler) Retry(c *gin.Context) {
	if err := h.control.RetryBiometric(); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": "No application is currently locked",
			"code":  "NOTHING_LOCKED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"retrying": true})
}

// Panic unconditionally dismisses any overlay
// POST /panic
func (h *GuardHandler) Panic(c *gin.Context) {
	h.control.Panic()
	c.JSON(http.StatusOK, gin.H{"dismissed": true})
}
