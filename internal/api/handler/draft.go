package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/autosave"
	"github.com/timmy/stockmeta/internal/bulkedit"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/service"
)

// DraftHandler handles metadata editing endpoints.
type DraftHandler struct {
	workspace *service.Workspace
}

// NewDraftHandler creates a new draft handler.
func NewDraftHandler(workspace *service.Workspace) *DraftHandler {
	return &DraftHandler{workspace: workspace}
}

type draftResponse struct {
	Status   autosave.Status  `json:"status"`
	Buffer   *domain.Metadata `json:"buffer"`
	Snapshot *domain.Metadata `json:"snapshot"`
	Pending  bool             `json:"pending"`
	Issues   []domain.Issue   `json:"issues,omitempty"`
}

func toDraft(st autosave.State) draftResponse {
	resp := draftResponse{
		Status:   st.Status,
		Buffer:   st.Buffer,
		Snapshot: st.Snapshot,
		Pending:  st.Pending,
	}
	if st.Buffer != nil {
		resp.Issues = st.Buffer.Issues()
	}
	return resp
}

// EditRequest is the body of PATCH /api/v1/assets/:id/draft.
type EditRequest struct {
	Field    autosave.Field `json:"field" binding:"required"`
	Text     string         `json:"text"`
	Keywords []string       `json:"keywords"`
}

// Edit handles PATCH /api/v1/assets/:id/draft.
func (h *DraftHandler) Edit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	st, err := h.workspace.EditDraft(c.Param("id"), autosave.Edit{
		Field:    req.Field,
		Text:     req.Text,
		Keywords: req.Keywords,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDraft(st))
}

// Blur handles POST /api/v1/assets/:id/blur.
func (h *DraftHandler) Blur(c *gin.Context) {
	st, err := h.workspace.BlurDraft(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDraft(st))
}

// Get handles GET /api/v1/assets/:id/draft.
func (h *DraftHandler) Get(c *gin.Context) {
	st, err := h.workspace.Draft(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDraft(st))
}

// Replace handles PUT /api/v1/assets/:id/metadata.
func (h *DraftHandler) Replace(c *gin.Context) {
	var m domain.Metadata
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	a, err := h.workspace.UpdateMetadata(c.Request.Context(), c.Param("id"), &m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// AddKeyword handles POST /api/v1/assets/:id/keywords.
func (h *DraftHandler) AddKeyword(c *gin.Context) {
	var req struct {
		Keyword string `json:"keyword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	a, err := h.workspace.AddKeyword(c.Request.Context(), c.Param("id"), req.Keyword)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// Dedupe handles POST /api/v1/assets/:id/dedupe.
func (h *DraftHandler) Dedupe(c *gin.Context) {
	a, err := h.workspace.RemoveDuplicateKeywords(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(a))
}

// BulkEditRequest is the body of POST /api/v1/bulk-edit. KeywordsInput is a
// comma separated alternative to Keywords.
type BulkEditRequest struct {
	bulkedit.Request
	KeywordsInput string   `json:"keywords_input"`
	IDs           []string `json:"ids" binding:"required"`
}

// BulkEdit handles POST /api/v1/bulk-edit.
func (h *DraftHandler) BulkEdit(c *gin.Context) {
	var req BulkEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if len(req.Keywords) == 0 && req.KeywordsInput != "" {
		req.Keywords = bulkedit.ParseKeywords(req.KeywordsInput)
	}
	changed, err := h.workspace.BulkEdit(c.Request.Context(), req.Request, req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"changed": toResponses(changed),
		"count":   len(changed),
	})
}
