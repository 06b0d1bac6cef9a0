package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/service"
)

// SettingsHandler handles theme, API key and session endpoints.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetTheme handles GET /api/v1/settings/theme.
func (h *SettingsHandler) GetTheme(c *gin.Context) {
	theme, err := h.settings.Theme(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": theme})
}

// SetTheme handles PUT /api/v1/settings/theme.
func (h *SettingsHandler) SetTheme(c *gin.Context) {
	var req struct {
		Theme string `json:"theme" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if err := h.settings.SetTheme(c.Request.Context(), req.Theme); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"theme": req.Theme})
}

// SetAPIKey handles PUT /api/v1/settings/api-key. The key is never echoed back.
func (h *SettingsHandler) SetAPIKey(c *gin.Context) {
	var req struct {
		APIKey string `json:"api_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if err := h.settings.SetAPIKey(c.Request.Context(), req.APIKey); err != nil {
		respondError(c, err)
		return
	}
	h.Session(c)
}

// ClearAPIKey handles DELETE /api/v1/settings/api-key.
func (h *SettingsHandler) ClearAPIKey(c *gin.Context) {
	if err := h.settings.ClearAPIKey(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	h.Session(c)
}

// Session handles GET /api/v1/session.
func (h *SettingsHandler) Session(c *gin.Context) {
	info, err := h.settings.Session(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
