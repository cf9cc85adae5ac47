package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/coderev/coderev/backend/go-services/internal/live"
	"github.com/coderev/coderev/backend/go-services/internal/models"
	"github.com/gin-gonic/gin"
)

func (h *APIHandler) ListWorkspaces(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Workspaces.LoadWorkspaces(s.Context(c.Request.Context())); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Workspaces.Workspaces())
}

func (h *APIHandler) CreateWorkspace(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	w, err := s.Workspaces.CreateWorkspace(s.Context(c.Request.Context()), req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// openWorkspace makes the :uid workspace the session's open workspace.
func (h *APIHandler) openWorkspace(c *gin.Context) (*live.Session, bool) {
	s, ok := h.session(c)
	if !ok {
		return nil, false
	}
	if err := s.Workspaces.EnsureWorkspace(s.Context(c.Request.Context()), c.Param("uid")); err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *APIHandler) GetWorkspace(c *gin.Context) {
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Workspaces.Workspace())
}

func (h *APIHandler) DeleteWorkspace(c *gin.Context) {
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	var files []models.MediaRef
	if w := s.Workspaces.Workspace(); w != nil {
		for _, f := range w.Sources {
			files = append(files, f)
		}
	}
	if err := s.Workspaces.DeleteWorkspace(s.Context(c.Request.Context()), c.Param("uid"), files); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddSource takes a multipart "file" field.
func (h *APIHandler) AddSource(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > maxSourceSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d bytes", maxSourceSize)})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxSourceSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	ref, err := s.Workspaces.AddSource(s.Context(c.Request.Context()), fh.Filename, content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *APIHandler) RemoveSource(c *gin.Context) {
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	if err := s.Workspaces.RemoveSource(s.Context(c.Request.Context()), c.Param("sourceUid")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) AddCollaborator(c *gin.Context) {
	var req struct {
		ProfileUID string                  `json:"profileUid" binding:"required"`
		Role       models.CollaboratorRole `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	ref, err := s.Workspaces.AddCollaborator(s.Context(c.Request.Context()), req.ProfileUID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ref)
}

func (h *APIHandler) RateCandidate(c *gin.Context) {
	var req models.Rating
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	r, err := s.Workspaces.RateCandidate(s.Context(c.Request.Context()), c.Param("candidateUid"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *APIHandler) ListCandidates(c *gin.Context) {
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	ctx := s.Context(c.Request.Context())
	if err := s.Candidates.LoadCandidates(ctx, c.Query("candidateUid"), c.Query("email"), c.Param("uid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Candidates.Candidates())
}

func (h *APIHandler) CreateCandidate(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
		Label string `json:"label"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, ok := h.openWorkspace(c)
	if !ok {
		return
	}
	cr, err := s.Candidates.CreateCandidate(s.Context(c.Request.Context()), req.Email, req.Label)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cr)
}
