package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/imageprep"
	"github.com/timmy/stockmeta/internal/service"
	"github.com/timmy/stockmeta/internal/storage"
)

// AssetHandler handles upload, listing and generation endpoints.
type AssetHandler struct {
	workspace *service.Workspace
	storage   storage.ObjectStorage
	maxUpload int64
}

// NewAssetHandler creates a new asset handler.
// Parameters:
//   - workspace: asset collection owner.
//   - objectStorage: blob store used to serve previews.
//   - maxUploadMB: request body limit for uploads; 0 disables the limit.
//
// Returns:
//   - *AssetHandler: initialized handler.
func NewAssetHandler(workspace *service.Workspace, objectStorage storage.ObjectStorage, maxUploadMB int64) *AssetHandler {
	return &AssetHandler{
		workspace: workspace,
		storage:   objectStorage,
		maxUpload: maxUploadMB << 20,
	}
}

// assetResponse adds metadata hints to an asset.
type assetResponse struct {
	*domain.Asset
	Issues []domain.Issue `json:"issues,omitempty"`
}

func toResponse(a *domain.Asset) assetResponse {
	resp := assetResponse{Asset: a}
	if a != nil && a.Metadata != nil {
		resp.Issues = a.Metadata.Issues()
	}
	return resp
}

func toResponses(assets []*domain.Asset) []assetResponse {
	out := make([]assetResponse, len(assets))
	for i, a := range assets {
		out[i] = toResponse(a)
	}
	return out
}

// Upload handles POST /api/v1/assets with multipart field "files".
func (h *AssetHandler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Invalid upload: "+err.Error())
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "No files provided")
		return
	}

	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			badRequest(c, fmt.Sprintf("Failed to read %s: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			badRequest(c, fmt.Sprintf("Failed to read %s: %v", fh.Filename, err))
			return
		}
		uploads = append(uploads, service.Upload{Name: fh.Filename, Data: data})
	}

	changed, err := h.workspace.AddFiles(c.Request.Context(), uploads)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"changed": toResponses(changed),
		"assets":  toResponses(h.workspace.List()),
	})
}

// List handles GET /api/v1/assets.
func (h *AssetHandler) List(c *gin.Context) {
	assets := h.workspace.List()
	c.JSON(http.StatusOK, gin.H{
		"assets": toResponses(assets),
		"total":  len(assets),
		"mode":   h.workspace.Mode(),
	})
}

// Get handles GET /api/v1/assets/:id.
func (h *AssetHandler) Get(c *gin.Context) {
	a, err := h.workspace.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// Remove handles DELETE /api/v1/assets/:id.
func (h *AssetHandler) Remove(c *gin.Context) {
	if err := h.workspace.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Clear handles DELETE /api/v1/assets.
func (h *AssetHandler) Clear(c *gin.Context) {
	if err := h.workspace.ClearAll(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Preview handles GET /api/v1/assets/:id/preview.
func (h *AssetHandler) Preview(c *gin.Context) {
	rc, mime, err := h.workspace.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()
	if mime == "" {
		mime = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, mime, rc, nil)
}

// Blob handles GET /api/v1/blobs/*key for locally stored files.
func (h *AssetHandler) Blob(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	rc, err := h.storage.Download(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, imageprep.DetectMIME(data), data)
}

// Generate handles POST /api/v1/assets/:id/generate.
func (h *AssetHandler) Generate(c *gin.Context) {
	a, err := h.workspace.Generate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if a == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// GenerateAll handles POST /api/v1/generate-all.
func (h *AssetHandler) GenerateAll(c *gin.Context) {
	stats, err := h.workspace.GenerateAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":  stats,
		"assets": toResponses(h.workspace.List()),
	})
}

// GetMode handles GET /api/v1/mode.
func (h *AssetHandler) GetMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.workspace.Mode()})
}

// SetMode handles PUT /api/v1/mode.
func (h *AssetHandler) SetMode(c *gin.Context) {
	var req struct {
		Mode domain.GenerationMode `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if err := h.workspace.SetMode(req.Mode); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

// Trends handles POST /api/v1/assets/:id/trends.
func (h *AssetHandler) Trends(c *gin.Context) {
	trends, err := h.workspace.FindTrends(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": trends})
}
