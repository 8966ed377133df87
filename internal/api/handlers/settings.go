package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"appguard/internal/core"
)

// SettingsStore is the settings surface the handler needs.
type SettingsStore interface {
	Current() core.Settings
	Update(mutate func(*core.Settings)) (core.Settings, error)
}

// SettingsHandler handles user-preference requests
type SettingsHandler struct {
	store  SettingsStore
	logger *slog.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(store SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		store:  store,
		logger: logger,
	}
}

// GetSettings returns the current settings
// GET /settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Current())
}

// UpdateSettings patches settings fields
// PATCH /settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req struct {
		ProtectionEnabled         *bool `json:"protection_enabled"`
		LockOnSleep               *bool `json:"lock_on_sleep"`
		LockOnIdle                *bool `json:"lock_on_idle"`
		IdleTimeoutMinutes        *int  `json:"idle_timeout_minutes"`
		RequireAuthOnLaunch       *bool `json:"require_auth_on_launch"`
		RequireAuthOnActivate     *bool `json:"require_auth_on_activate"`
		UseCompanionUnlock        *bool `json:"use_companion_unlock"`
		CompanionRSSIThreshold    *int  `json:"companion_rssi_threshold"`
		InactiveCloseMinutes      *int  `json:"inactive_close_minutes"`
		AssumeUnlockedWhenUnknown *bool `json:"assume_unlocked_when_unknown"`
		SessionGraceSeconds       *int  `json:"session_grace_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
			"code":  "INVALID_REQUEST",
		})
		return
	}

	if req.IdleTimeoutMinutes != nil && *req.IdleTimeoutMinutes < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "idle_timeout_minutes must be at least 1",
			"code":  "INVALID_REQUEST",
		})
		return
	}
	if req.CompanionRSSIThreshold != nil && (*req.CompanionRSSIThreshold > 0 || *req.CompanionRSSIThreshold < -100) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "companion_rssi_threshold must be between -100 and 0",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	updated, err := h.store.Update(func(s *core.Settings) {
		if req.ProtectionEnabled != nil {
			s.ProtectionEnabled = *req.ProtectionEnabled
		}
		if req.LockOnSleep != nil {
			s.LockOnSleep = *req.LockOnSleep
		}
		if req.LockOnIdle != nil {
			s.LockOnIdle = *req.LockOnIdle
		}
		if req.IdleTimeoutMinutes != nil {
			s.IdleTimeoutMinutes = *req.IdleTimeoutMinutes
		}
		if req.RequireAuthOnLaunch != nil {
			s.RequireAuthOnLaunch = *req.RequireAuthOnLaunch
		}
		if req.RequireAuthOnActivate != nil {
			s.RequireAuthOnActivate = *req.RequireAuthOnActivate
		}
		if req.UseCompanionUnlock != nil {
			s.UseCompanionUnlock = *req.UseCompanionUnlock
		}
		if req.CompanionRSSIThreshold != nil {
			s.CompanionRSSIThreshold = *req.CompanionRSSIThreshold
		}
		if req.InactiveCloseMinutes != nil {
			s.InactiveCloseMinutes = *req.InactiveCloseMinutes
		}
		if req.AssumeUnlockedWhenUnknown != nil {
			s.AssumeUnlockedWhenUnknown = *req.AssumeUnlockedWhenUnknown
		}
		if req.SessionGraceSeconds != nil {
			s.SessionGraceSeconds = *req.SessionGraceSeconds
		}
	})
	if err != nil {
		h.logger.Error("Failed to update settings",
			"component", "api",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to save settings",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, updated)
}
