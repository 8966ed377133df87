package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SecretManager is the backup-secret surface the handler needs.
type SecretManager interface {
	Set(ctx context.Context, secret string) error
	Has(ctx context.Context) (bool, error)
	Delete(ctx context.Context) error
}

// SecretHandler manages the backup secret
type SecretHandler struct {
	secrets SecretManager
	logger  *slog.Logger
}

// NewSecretHandler creates a new secret handler
func NewSecretHandler(secrets SecretManager, logger *slog.Logger) *SecretHandler {
	return &SecretHandler{
		secrets: secrets,
		logger:  logger,
	}
}

// SetSecret stores or replaces the backup secret
// PUT /secret
func (h *SecretHandler) SetSecret(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required,min=4"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Secret must be at least 4 characters",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	if err := h.secrets.Set(c.Request.Context(), req.Secret); err != nil {
		h.logger.Error("Failed to set secret",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store secret",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"set": true})
}

// GetSecretStatus reports whether a backup secret is configured
// GET /secret
func (h *SecretHandler) GetSecretStatus(c *gin.Context) {
	has, err := h.secrets.Has(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to check secret",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to check secret",
			"code":  "INTERNAL_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"configured": has})
}

// DeleteSecret removes the backup secret. Deleting an absent secret is a
// no-op.
// DELETE /secret
func (h *SecretHandler) DeleteSecret(c *gin.Context) {
	if err := h.secrets.Delete(c.Request.Context()); err != nil {
		h.logger.Error("Failed to delete secret",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete secret",
			"code":  "INTERNAL_ERROR",
		})
		return
	}
	c.Status(http.StatusNoContent)
}
