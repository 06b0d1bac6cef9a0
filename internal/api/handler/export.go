package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/export"
	"github.com/timmy/stockmeta/internal/service"
)

// ExportHandler handles archive export and prompt generation.
type ExportHandler struct {
	workspace *service.Workspace
}

// NewExportHandler creates a new export handler.
func NewExportHandler(workspace *service.Workspace) *ExportHandler {
	return &ExportHandler{workspace: workspace}
}

// renameParam reads ?rename=; absent means the configured default.
func renameParam(c *gin.Context) (*bool, error) {
	raw, ok := c.GetQuery("rename")
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("rename must be true or false")
	}
	return &v, nil
}

// exportFailed maps archive errors. Everything except an empty export is
// reported with one generic message.
func exportFailed(c *gin.Context, err error) {
	if errors.Is(err, export.ErrNothingToExport) {
		respondError(c, err)
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": zipFailureMessage})
}

// Download handles GET /api/v1/export.
func (h *ExportHandler) Download(c *gin.Context) {
	rename, err := renameParam(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	archive, err := h.workspace.Export(c.Request.Context(), rename)
	if err != nil {
		exportFailed(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Name))
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

// Upload handles POST /api/v1/export/upload.
func (h *ExportHandler) Upload(c *gin.Context) {
	rename, err := renameParam(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := h.workspace.ExportToStorage(c.Request.Context(), rename)
	if err != nil {
		exportFailed(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Prompt handles POST /api/v1/prompts with multipart field "file".
func (h *ExportHandler) Prompt(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Missing file: "+err.Error())
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "Failed to read file: "+err.Error())
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		badRequest(c, "Failed to read file: "+err.Error())
		return
	}

	prompt, err := h.workspace.GeneratePrompt(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filename": fh.Filename,
		"prompt":   prompt,
	})
}
