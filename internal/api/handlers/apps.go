package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"appguard/internal/core"
	"appguard/internal/registry"
)

// AppRegistry is the registry surface the apps handler needs.
type AppRegistry interface {
	List() []core.ProtectedApp
	Add(ctx context.Context, bundleID, name, path string, autoClose bool) (core.ProtectedApp, error)
	Remove(ctx context.Context, id string) error
	Patch(ctx context.Context, id string, mutate func(*core.ProtectedApp)) (core.ProtectedApp, error)
}

// AppsHandler handles protected-app CRUD requests
type AppsHandler struct {
	registry AppRegistry
	logger   *slog.Logger
}

// NewAppsHandler creates a new apps handler
func NewAppsHandler(reg AppRegistry, logger *slog.Logger) *AppsHandler {
	return &AppsHandler{
		registry: reg,
		logger:   logger,
	}
}

func appResponse(app core.ProtectedApp) gin.H {
	return gin.H{
		"id":         app.ID,
		"bundle_id":  app.BundleID,
		"name":       app.Name,
		"path":       app.Path,
		"enabled":    app.Enabled,
		"auto_close": app.AutoClose,
		"created_at": app.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"updated_at": app.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ListApps returns all protected apps
// GET /apps
func (h *AppsHandler) ListApps(c *gin.Context) {
	apps := h.registry.List()
	response := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		response = append(response, appResponse(app))
	}
	c.JSON(http.StatusOK, response)
}

// CreateApp protects a new application
// POST /apps
func (h *AppsHandler) CreateApp(c *gin.Context) {
	var req struct {
		BundleID  string `json:"bundle_id" binding:"required"`
		Name      string `json:"name" binding:"required"`
		Path      string `json:"path"`
		AutoClose bool   `json:"auto_close"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
			"code":  "INVALID_REQUEST",
		})
		return
	}

	app, err := h.registry.Add(c.Request.Context(), req.BundleID, req.Name, req.Path, req.AutoClose)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrExemptApp):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "This application is exempt and cannot be protected",
				"code":  "APP_EXEMPT",
			})
		case errors.Is(err, core.ErrAppExists):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Application is already protected",
				"code":  "APP_EXISTS",
			})
		case errors.Is(err, core.ErrInvalidBundleID), errors.Is(err, core.ErrInvalidName):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_REQUEST",
			})
		default:
			h.logger.Error("Failed to create app",
				"component", "api",
				"bundle_id", req.BundleID,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to protect application",
				"code":  "INTERNAL_ERROR",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, appResponse(app))
}

// UpdateApp patches the mutable flags of a protected app
// PATCH /apps/:id
func (h *AppsHandler) UpdateApp(c *gin.Context) {
	id := c.Param("id")

	var req struct {
		Name      *string `json:"name"`
		Path      *string `json:"path"`
		Enabled   *bool   `json:"enabled"`
		AutoClose *bool   `json:"auto_close"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
			"code":  "INVALID_REQUEST",
		})
		return
	}

	app, err := h.registry.Patch(c.Request.Context(), id, func(app *core.ProtectedApp) {
		if req.Name != nil {
			app.Name = *req.Name
		}
		if req.Path != nil {
			app.Path = *req.Path
		}
		if req.Enabled != nil {
			app.Enabled = *req.Enabled
		}
		if req.AutoClose != nil {
			app.AutoClose = *req.AutoClose
		}
	})
	if err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Protected app not found",
				"code":  "APP_NOT_FOUND",
			})
			return
		}
		h.logger.Error("Failed to update app",
			"component", "api",
			"app_id", id,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update application",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, appResponse(app))
}

// DeleteApp removes an app from protection
// DELETE /apps/:id
func (h *AppsHandler) DeleteApp(c *gin.Context) {
	id := c.Param("id")

	if err := h.registry.Remove(c.Request.Context(), id); err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Protected app not found",
				"code":  "APP_NOT_FOUND",
			})
			return
		}
		h.logger.Error("Failed to delete app",
			"component", "api",
			"app_id", id,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to remove application",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.Status(http.StatusNoContent)
}
